package reservation

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
)

type UseCase interface {
	// Reserve holds quantity across batches in FEFO order, one row per batch.
	// Either every row is created or none is.
	Reserve(ctx context.Context, input *dto.ReserveInput) ([]model.StockReservation, error)
	// Commit deducts the held quantity from the pinned batch.
	Commit(ctx context.Context, reservationID string) (*model.StockReservation, error)
	// Release reports false when the hold was already released.
	Release(ctx context.Context, reservationID string, reason model.ReleaseReason) (bool, error)
	GetExpired(ctx context.Context, now time.Time, limit int) ([]model.StockReservation, error)

	ReleaseByOrder(ctx context.Context, orderID string, reason model.ReleaseReason) (int, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.StockReservation, error)
}
