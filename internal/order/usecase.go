package order

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/order/dto"
)

type UseCase interface {
	// ValidateStockAvailability returns InsufficientStock for the first item
	// that cannot be covered. It changes nothing.
	ValidateStockAvailability(ctx context.Context, items []dto.OrderItem) error
	// DeductInventory deducts each item FEFO. It does not undo earlier items
	// when a later one fails; callers wrap it in a transaction.
	DeductInventory(ctx context.Context, items []dto.OrderItem) ([]dto.ItemAllocation, error)
	// RestoreInventory returns quantities to stock as Return adjustments.
	RestoreInventory(ctx context.Context, orderID string, items []dto.OrderItem) error

	// ReserveOrder holds every line or none. Lines that already hold stock
	// keep their holds, so a repeated call returns the same reservations.
	ReserveOrder(ctx context.Context, input *dto.ReserveOrderInput) ([]model.StockReservation, error)
	CancelOrder(ctx context.Context, orderID string) (*dto.CancelResult, error)
}
