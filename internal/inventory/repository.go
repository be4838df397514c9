package inventory

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	// Aggregate access. Both return nil, nil when the variant has no stock row.
	Get(ctx context.Context, variantID string) (*model.VariantInventory, error)
	// GetForUpdate row-locks the Stock row; it must run inside a transaction.
	GetForUpdate(ctx context.Context, variantID string) (*model.VariantInventory, error)

	CreateStock(ctx context.Context, stock *model.Stock) error
	// Save persists the Stock row with a version check plus new and changed batches.
	Save(ctx context.Context, inv *model.VariantInventory) error

	GetStock(ctx context.Context, variantID string) (*model.Stock, error)
	UpdateThreshold(ctx context.Context, variantID string, threshold int) error
	FindStocks(ctx context.Context, filters *dto.StockFilters) ([]model.Stock, int, error)

	GetBatchesByIDs(ctx context.Context, ids []string) ([]model.Batch, error)
}
