package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Logger      LoggerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Reservation ReservationConfig
	Retry       RetryConfig
	Otel        OtelConfig
}

type ServerConfig struct {
	AppEnv   string
	GRPCPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	LockAttempts int
	LockBackoff  time.Duration
}

type KafkaConfig struct {
	Brokers         []string
	GroupID         string
	OrdersTopic     string
	InventoryTopic  string
	ShippingTopic   string
	ConsumerEnabled bool
}

type ReservationConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

type OtelConfig struct {
	ServiceName string
	Endpoint    string // Empty disables trace export
	Insecure    bool
	SampleRatio float64
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			GRPCPort: getEnv("GRPC_PORT", ":8083"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_inventory"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 0),
			LockAttempts: getEnvInt("REDIS_LOCK_ATTEMPTS", 3),
			LockBackoff:  getEnvDuration("REDIS_LOCK_BACKOFF", 100*time.Millisecond),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:         getEnv("KAFKA_GROUP_INVENTORY", "inventory"),
			OrdersTopic:     getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
			InventoryTopic:  getEnv("KAFKA_TOPIC_INVENTORY", "inventory.events"),
			ShippingTopic:   getEnv("KAFKA_TOPIC_SHIPPING", "shipping.requests"),
			ConsumerEnabled: getEnvBool("KAFKA_CONSUMER_ENABLED", true),
		},
		Reservation: ReservationConfig{
			TTL:           getEnvDuration("RESERVATION_TTL", 15*time.Minute),
			SweepInterval: getEnvDuration("RESERVATION_SWEEP_INTERVAL", 5*time.Minute),
			SweepBatch:    getEnvInt("RESERVATION_SWEEP_BATCH", 500),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("TX_RETRY_MAX_ATTEMPTS", 3),
			Backoff:     getEnvDuration("TX_RETRY_BACKOFF", 50*time.Millisecond),
		},
		Otel: OtelConfig{
			ServiceName: getEnv("OTEL_SERVICE_NAME", "omnipos-inventory-service"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_RATIO", 1),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings such as "90s" or "15m".
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}
