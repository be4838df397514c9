package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/order"
	"github.com/fekuna/omnipos-inventory-service/internal/order/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventOrderPlaced           = "OrderPlaced"
	EventOrderCancelled        = "OrderCancelled"
	EventOfflineOrderCompleted = "OfflineOrderCompleted"
)

const (
	retryBackoff    = 500 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

// Consumer hands out messages whose offsets are committed only once they are
// applied, so a failed event is delivered again.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type OrderListener struct {
	consumer Consumer
	uc       order.UseCase
	events   order.Repository
	tx       txn.Manager
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewOrderListener(consumer Consumer, uc order.UseCase, events order.Repository, tx txn.Manager, logger logger.ZapLogger) *OrderListener {
	return &OrderListener{
		consumer: consumer,
		uc:       uc,
		events:   events,
		tx:       tx,
		logger:   logger,
		backoff:  retryBackoff,
	}
}

func (l *OrderListener) Start(ctx context.Context) {
	l.logger.Info("Starting Order Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Order Kafka Listener")
			return
		default:
			msg, err := l.consumer.FetchMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			if err := l.handle(ctx, msg.Value); err != nil {
				// Shutting down; the uncommitted message is delivered again.
				return
			}
			if err := l.consumer.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				l.logger.Error("Failed to commit kafka message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
		}
	}
}

// transient errors leave the event unapplied but may clear on their own.
func transient(err error) bool {
	return apperr.IsRetryable(err) || apperr.KindOf(err) == apperr.InternalError
}

// handle applies one message, retrying transient failures until they clear.
// It only fails when ctx ends first.
func (l *OrderListener) handle(ctx context.Context, value []byte) error {
	delay := l.backoff
	for {
		err := l.processMessage(ctx, value)
		if err == nil {
			return nil
		}
		if !transient(err) {
			// Business rejections are final; redelivery would fail the same way.
			return nil
		}

		l.logger.Warn("Order event failed, retrying", zap.Duration("backoff", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID          string             `json:"id"`
	HoldMinutes int                `json:"hold_minutes"` // Zero uses the default hold window
	Items       []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	OrderDetailID string `json:"order_detail_id"`
	VariantID     string `json:"variant_id"`
	Quantity      int    `json:"quantity"`
}

// processMessage applies an event and its processed marker in one
// transaction. Malformed and unknown events are skipped with a nil error.
func (l *OrderListener) processMessage(ctx context.Context, value []byte) error {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return nil
	}

	switch event.EventType {
	case EventOrderPlaced, EventOrderCancelled, EventOfflineOrderCompleted:
	default:
		return nil
	}

	ctx = auth.WithSystemActor(ctx)
	orderID := event.Payload.ID

	duplicate := false
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		duplicate = false
		if event.EventID == "" {
			l.logger.Warn("Order event without id, applying without dedup", zap.String("order_id", orderID))
		} else {
			fresh, err := l.events.MarkProcessed(ctx, event.EventID, event.EventType)
			if err != nil {
				return err
			}
			if !fresh {
				duplicate = true
				return nil
			}
		}
		return l.apply(ctx, &event)
	})
	if err != nil {
		l.logger.Error("Failed to apply order event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return err
	}
	if duplicate {
		l.logger.Info("Skipping already applied order event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
		)
	}
	return nil
}

func (l *OrderListener) apply(ctx context.Context, event *OrderEvent) error {
	orderID := event.Payload.ID

	switch event.EventType {
	case EventOrderPlaced:
		l.logger.Info("Processing OrderPlaced event", zap.String("order_id", orderID))
		lines := make([]dto.OrderLine, 0, len(event.Payload.Items))
		for _, item := range event.Payload.Items {
			lines = append(lines, dto.OrderLine{
				OrderDetailID: item.OrderDetailID,
				VariantID:     item.VariantID,
				Quantity:      item.Quantity,
			})
		}
		_, err := l.uc.ReserveOrder(ctx, &dto.ReserveOrderInput{
			OrderID: orderID,
			Lines:   lines,
			TTL:     time.Duration(event.Payload.HoldMinutes) * time.Minute,
		})
		return err

	case EventOrderCancelled:
		l.logger.Info("Processing OrderCancelled event", zap.String("order_id", orderID))
		_, err := l.uc.CancelOrder(ctx, orderID)
		return err

	default:
		l.logger.Info("Processing OfflineOrderCompleted event", zap.String("order_id", orderID))
		items := make([]dto.OrderItem, 0, len(event.Payload.Items))
		for _, item := range event.Payload.Items {
			items = append(items, dto.OrderItem{VariantID: item.VariantID, Quantity: item.Quantity})
		}
		// The whole sale is deducted or none of it.
		_, err := l.uc.DeductInventory(ctx, items)
		return err
	}
}
