// Package shipping hands fulfilled orders to the carrier integration by
// publishing a shipping request; the request id is the tracking handle.
package shipping

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/broker"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const EventShippingRequested = "ShippingRequested"

type ShippingRequested struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	RequestID string         `json:"request_id"`
	OrderID   string         `json:"order_id"`
	StaffID   string         `json:"staff_id,omitempty"`
	Recipient *dto.Recipient `json:"recipient,omitempty"`
	Parcels   []dto.Parcel   `json:"parcels"`
	Timestamp time.Time      `json:"timestamp"`
}

type Requester struct {
	publisher broker.Publisher
	topic     string
	logger    logger.ZapLogger
	now       func() time.Time
}

func NewRequester(publisher broker.Publisher, topic string, log logger.ZapLogger) *Requester {
	return &Requester{
		publisher: publisher,
		topic:     topic,
		logger:    log,
		now:       time.Now,
	}
}

// CreateShippingOrder publishes the request keyed by order id and returns
// the request id.
func (r *Requester) CreateShippingOrder(ctx context.Context, input *dto.ShipmentInput) (string, error) {
	if len(input.Parcels) == 0 {
		return "", fmt.Errorf("shipping request for order %s has no parcels", input.OrderID)
	}

	requestID := uuid.New().String()
	event := ShippingRequested{
		EventID:   uuid.New().String(),
		EventType: EventShippingRequested,
		RequestID: requestID,
		OrderID:   input.OrderID,
		StaffID:   input.StaffID,
		Recipient: input.Recipient,
		Parcels:   input.Parcels,
		Timestamp: r.now(),
	}
	if err := r.publisher.Publish(ctx, r.topic, input.OrderID, event); err != nil {
		return "", fmt.Errorf("publish shipping request for order %s: %w", input.OrderID, err)
	}

	r.logger.Info("Shipping requested",
		zap.String("order_id", input.OrderID),
		zap.String("request_id", requestID),
		zap.Int("parcels", len(input.Parcels)),
	)
	return requestID, nil
}
