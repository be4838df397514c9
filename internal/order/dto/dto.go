package dto

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// OrderItem is a (variant, quantity) pair of an order.
type OrderItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// OrderLine is an order detail row to hold stock for.
type OrderLine struct {
	OrderDetailID string `json:"order_detail_id"`
	VariantID     string `json:"variant_id"`
	Quantity      int    `json:"quantity"`
}

type ReserveOrderInput struct {
	OrderID string
	Lines   []OrderLine
	TTL     time.Duration
}

type ItemAllocation struct {
	VariantID   string                  `json:"variant_id"`
	Allocations []model.BatchAllocation `json:"allocations"`
}

type CancelResult struct {
	Released int `json:"released"` // Reserved holds released
	Restored int `json:"restored"` // Units of committed holds returned to stock
}
