package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/middleware"
	"github.com/fekuna/omnipos-inventory-service/internal/observability"
	"github.com/fekuna/omnipos-inventory-service/internal/shipping"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/cache"
	"github.com/fekuna/omnipos-inventory-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"

	adjRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/adjustment/repository"
	adjUCPkg "github.com/fekuna/omnipos-inventory-service/internal/adjustment/usecase"

	catRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/catalog/repository"
	catUCPkg "github.com/fekuna/omnipos-inventory-service/internal/catalog/usecase"

	fulH "github.com/fekuna/omnipos-inventory-service/internal/fulfillment/handler"
	fulUCPkg "github.com/fekuna/omnipos-inventory-service/internal/fulfillment/usecase"

	invH "github.com/fekuna/omnipos-inventory-service/internal/inventory/handler"
	invPubPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/publisher"
	invRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"

	orderH "github.com/fekuna/omnipos-inventory-service/internal/order/handler"
	orderListenerPkg "github.com/fekuna/omnipos-inventory-service/internal/order/listener"
	orderRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/order/repository"
	orderUCPkg "github.com/fekuna/omnipos-inventory-service/internal/order/usecase"

	resRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/repository"
	resSweeperPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/sweeper"
	resUCPkg "github.com/fekuna/omnipos-inventory-service/internal/reservation/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := observability.SetupTracing(ctx, observability.Config{
		ServiceName: cfg.Otel.ServiceName,
		Endpoint:    cfg.Otel.Endpoint,
		Insecure:    cfg.Otel.Insecure,
		SampleRatio: cfg.Otel.SampleRatio,
	})
	if err != nil {
		appLogger.Warn("Tracing disabled", zap.Error(err))
	} else if cfg.Otel.Endpoint != "" {
		appLogger.Info("Exporting traces", zap.String("endpoint", cfg.Otel.Endpoint))
	}

	// 4. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	txManager := txn.NewSQLXManager(db, txn.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
	}, apperr.IsRetryable)

	// 5. Initialize Repositories
	invRepo := invRepoPkg.NewPGRepository(db)
	resRepo := resRepoPkg.NewPGRepository(db)
	adjRepo := adjRepoPkg.NewPGRepository(db)
	catRepo := catRepoPkg.NewPGRepository(db)
	orderRepo := orderRepoPkg.NewPGRepository(db)

	// 6. Initialize Redis
	var (
		stockLocker  cache.Locker = cache.NewLocalLocker(cfg.Redis.LockAttempts, cfg.Redis.LockBackoff)
		sweepLocker  cache.Locker = cache.NewLocalLocker(0, 0)
		variantCache catUCPkg.Cache
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

		stockLocker = cache.NewRedisLocker(redisClient, cfg.Redis.LockAttempts, cfg.Redis.LockBackoff)
		// A replica that loses the sweep lock skips the tick instead of waiting.
		sweepLocker = cache.NewRedisLocker(redisClient, 0, 0)
		variantCache = redisClient
	} else {
		appLogger.Warn("REDIS_ADDR is empty, using in-process locks and no variant cache")
	}

	// 7. Initialize Kafka
	kafkaProducer := broker.NewProducer(cfg.Kafka.Brokers)
	defer kafkaProducer.Close()

	kafkaConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrdersTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer kafkaConsumer.Close()
	appLogger.Info("Connected to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.OrdersTopic))

	lowStock := invPubPkg.NewLowStockPublisher(kafkaProducer, cfg.Kafka.InventoryTopic, appLogger)
	shipper := shipping.NewRequester(kafkaProducer, cfg.Kafka.ShippingTopic, appLogger)

	// 8. Initialize UseCases
	invUC := invUCPkg.NewInventoryUseCase(invRepo, resRepo, txManager, lowStock, appLogger)
	resUC := resUCPkg.NewReservationUseCase(resRepo, invRepo, stockLocker, txManager, lowStock, appLogger,
		resUCPkg.WithDefaultTTL(cfg.Reservation.TTL))
	adjUC := adjUCPkg.NewAdjustmentUseCase(adjRepo, invRepo, resRepo, txManager, lowStock, appLogger)
	catUC := catUCPkg.NewCatalogUseCase(catRepo, variantCache, appLogger)
	orderUC := orderUCPkg.NewOrderUseCase(invUC, resUC, adjUC, txManager, appLogger)
	fulUC := fulUCPkg.NewFulfillmentUseCase(resUC, adjUC, invRepo, catUC, shipper, txManager, appLogger)

	// 9. Background workers
	sweeper := resSweeperPkg.NewSweeper(resUC, sweepLocker, appLogger,
		resSweeperPkg.WithInterval(cfg.Reservation.SweepInterval),
		resSweeperPkg.WithBatchSize(cfg.Reservation.SweepBatch),
	)
	go sweeper.Start(ctx)

	if cfg.Kafka.ConsumerEnabled {
		orderListener := orderListenerPkg.NewOrderListener(kafkaConsumer, orderUC, orderRepo, txManager, appLogger)
		go orderListener.Start(ctx)
	}

	// 10. Initialize Handlers
	invHandler := invH.NewInventoryHandler(invUC, adjUC, appLogger)
	orderHandler := orderH.NewOrderHandler(orderUC, resUC, appLogger)
	fulHandler := fulH.NewFulfillmentHandler(fulUC, appLogger)

	// 11. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(middleware.UnaryInterceptor(appLogger)),
	)

	// Register Services
	invHandler.Register(grpcServer)
	orderHandler.Register(grpcServer)
	fulHandler.Register(grpcServer)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Register Reflection
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()
	grpcServer.GracefulStop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Warn("Failed to flush traces", zap.Error(err))
	}
	appLogger.Info("Server stopped", zap.Time("last_sweep", sweeper.LastRun()))
}
