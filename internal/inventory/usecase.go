package inventory

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type UseCase interface {
	// Batch ledger
	ReceiveBatch(ctx context.Context, input *dto.ReceiveBatchInput) (*model.Batch, error)
	GetAvailableBatches(ctx context.Context, variantID string) ([]model.Batch, error)
	IsValidForDeduction(ctx context.Context, variantID string, quantity int) (bool, error)
	Deduct(ctx context.Context, variantID string, quantity int) ([]model.BatchAllocation, error)

	// Stock aggregate
	GetStock(ctx context.Context, variantID string) (*model.Stock, error)
	IsLowStock(ctx context.Context, variantID string) (bool, error)
	IsValidToCart(ctx context.Context, variantID string, quantity int) (bool, error)
	SetLowStockThreshold(ctx context.Context, variantID string, threshold int) error
	ListLowStock(ctx context.Context, page, pageSize int) ([]model.Stock, int, error)
}

// HoldCounter reports, per batch id, the quantity claimed by outstanding
// reservations of a variant.
type HoldCounter interface {
	SumOutstandingByBatch(ctx context.Context, variantID string) (map[string]int, error)
}

// LowStockNotifier is told about every committed stock change and signals
// when a variant drops to or below its threshold.
type LowStockNotifier interface {
	NotifyIfCrossed(ctx context.Context, before, after model.Stock)
}
