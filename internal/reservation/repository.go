package reservation

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, r *model.StockReservation) error
	// GetByID returns nil, nil when no reservation has the id.
	GetByID(ctx context.Context, id string) (*model.StockReservation, error)
	// GetByIDForUpdate row-locks the reservation; it must run inside a transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*model.StockReservation, error)
	// UpdateStatus persists a transition only if the stored status is still from.
	UpdateStatus(ctx context.Context, r *model.StockReservation, from model.ReservationStatus) error

	// SumOutstandingByBatch maps batch id to the quantity of Reserved holds on it.
	SumOutstandingByBatch(ctx context.Context, variantID string) (map[string]int, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.StockReservation, error)
	// ListExpired returns Reserved holds with ExpiresAt before now, oldest first.
	// A limit of zero or less means no limit.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.StockReservation, error)
}
