package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type ReservationRepository struct {
	s *Store
}

func (r *ReservationRepository) Create(ctx context.Context, res *model.StockReservation) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.reservations[res.ID]; exists {
			return apperr.Newf(apperr.InvalidState, "reservation %s already exists", res.ID)
		}
		r.s.reservations[res.ID] = *res
		return nil
	})
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*model.StockReservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.StockReservation, error) {
	if err := r.s.requireTx(ctx, "GetByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, res *model.StockReservation, from model.ReservationStatus) error {
	return r.s.write(ctx, func() error {
		stored, ok := r.s.reservations[res.ID]
		if !ok || stored.Status != from {
			return apperr.Newf(apperr.ConcurrencyConflict, "reservation %s is no longer %s", res.ID, from)
		}
		stored.Status = res.Status
		stored.ReleaseReason = res.ReleaseReason
		stored.CommittedAt = res.CommittedAt
		stored.ReleasedAt = res.ReleasedAt
		stored.UpdatedAt = res.UpdatedAt
		r.s.reservations[res.ID] = stored
		return nil
	})
}

func (r *ReservationRepository) SumOutstandingByBatch(ctx context.Context, variantID string) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	held := make(map[string]int)
	for _, res := range r.s.reservations {
		if res.VariantID == variantID && res.Status == model.ReservationReserved {
			held[res.BatchID] += res.ReservedQuantity
		}
	}
	return held, nil
}

func (r *ReservationRepository) ListByOrder(ctx context.Context, orderID string) ([]model.StockReservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []model.StockReservation{}
	for _, res := range r.s.reservations {
		if res.OrderID == orderID {
			items = append(items, res)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.OrderDetailID != b.OrderDetailID {
			return a.OrderDetailID < b.OrderDetailID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return items, nil
}

func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.StockReservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []model.StockReservation{}
	for _, res := range r.s.reservations {
		if res.IsExpired(now) {
			items = append(items, res)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ExpiresAt.Equal(items[j].ExpiresAt) {
			return items[i].ExpiresAt.Before(items[j].ExpiresAt)
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
