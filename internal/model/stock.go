package model

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
)

// Stock is the per-variant on-hand counter. It is denormalized from the
// variant's batches and must only be changed through VariantInventory.
type Stock struct {
	ID                string    `db:"id" json:"id"`
	VariantID         string    `db:"variant_id" json:"variant_id"`
	TotalQuantity     int       `db:"total_quantity" json:"total_quantity"`
	LowStockThreshold int       `db:"low_stock_threshold" json:"low_stock_threshold"`
	Version           int64     `db:"version" json:"version"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Stock) Increase(delta int) error {
	if delta < 0 {
		return apperr.Newf(apperr.InvalidArgument, "stock increase must not be negative, got %d", delta)
	}
	s.TotalQuantity += delta
	return nil
}

// Decrease rejects a delta larger than the total instead of clamping at zero.
func (s *Stock) Decrease(delta int) error {
	if delta < 0 {
		return apperr.Newf(apperr.InvalidArgument, "stock decrease must not be negative, got %d", delta)
	}
	if delta > s.TotalQuantity {
		return apperr.Newf(apperr.InsufficientStock,
			"variant %s has %d on hand, cannot remove %d", s.VariantID, s.TotalQuantity, delta)
	}
	s.TotalQuantity -= delta
	return nil
}

func (s Stock) IsLowStock() bool {
	return s.TotalQuantity <= s.LowStockThreshold
}

// IsValidToCart is a fast pre-check only; reservations are not accounted for.
func (s Stock) IsValidToCart(required int) bool {
	return s.TotalQuantity >= required
}
