package publisher

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const EventLowStock = "LowStockAlert"

type LowStockPublisher struct {
	publisher broker.Publisher
	topic     string
	logger    logger.ZapLogger
	now       func() time.Time
}

func NewLowStockPublisher(publisher broker.Publisher, topic string, log logger.ZapLogger) *LowStockPublisher {
	return &LowStockPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    log,
		now:       time.Now,
	}
}

// NotifyIfCrossed publishes an alert only on the transition from above the
// threshold to at-or-below it. Publishing is best effort.
func (p *LowStockPublisher) NotifyIfCrossed(ctx context.Context, before, after model.Stock) {
	if before.IsLowStock() || !after.IsLowStock() {
		return
	}

	alert := dto.LowStockAlert{
		EventID:           uuid.New().String(),
		EventType:         EventLowStock,
		VariantID:         after.VariantID,
		TotalQuantity:     after.TotalQuantity,
		LowStockThreshold: after.LowStockThreshold,
		Timestamp:         p.now(),
	}
	if err := p.publisher.Publish(ctx, p.topic, after.VariantID, alert); err != nil {
		p.logger.Warn("Failed to publish low stock alert",
			zap.String("variant_id", after.VariantID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("Low stock alert published",
		zap.String("variant_id", after.VariantID),
		zap.Int("total_quantity", after.TotalQuantity),
		zap.Int("threshold", after.LowStockThreshold),
	)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyIfCrossed(context.Context, model.Stock, model.Stock) {}
