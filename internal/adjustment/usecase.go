package adjustment

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type UseCase interface {
	// Record applies the change to the variant's batches and appends one
	// ledger row per batch touched, in a single transaction.
	Record(ctx context.Context, input *dto.RecordInput) ([]model.StockAdjustment, error)
	List(ctx context.Context, filters *dto.AdjustmentFilters) ([]model.StockAdjustment, int, error)
}
