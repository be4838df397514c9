package adjustment

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, a *model.StockAdjustment) error
	List(ctx context.Context, filters *dto.AdjustmentFilters) ([]model.StockAdjustment, int, error)
}
