package model

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
)

// AllocateFEFO splits quantity over batches by effective availability:
// remaining minus what outstanding holds already claim on that batch.
// Batches must already be in FEFO order. Either the whole quantity is
// allocated or InsufficientStock is returned with no allocation.
func AllocateFEFO(batches []Batch, held map[string]int, quantity int, exclude map[string]bool) ([]BatchAllocation, error) {
	if quantity <= 0 {
		return nil, apperr.Newf(apperr.InvalidArgument, "quantity must be positive, got %d", quantity)
	}

	var allocs []BatchAllocation
	left := quantity
	for _, b := range batches {
		if left == 0 {
			break
		}
		if exclude[b.ID] {
			continue
		}
		effective := b.RemainingQuantity - held[b.ID]
		if effective <= 0 {
			continue
		}
		take := min(left, effective)
		allocs = append(allocs, BatchAllocation{BatchID: b.ID, BatchCode: b.BatchCode, Quantity: take, ExpiryDate: b.ExpiryDate})
		left -= take
	}

	if left > 0 {
		return nil, apperr.Newf(apperr.InsufficientStock,
			"only %d of %d units can be reserved", quantity-left, quantity)
	}
	return allocs, nil
}

// EffectiveAvailable is the sum of remaining minus held over live batches.
func EffectiveAvailable(batches []Batch, held map[string]int, now time.Time) int {
	total := 0
	for _, b := range batches {
		if b.IsExpired(now) {
			continue
		}
		if e := b.RemainingQuantity - held[b.ID]; e > 0 {
			total += e
		}
	}
	return total
}
