package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/observability"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/cache"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	DefaultTTL   = 15 * time.Minute
	stockLockTTL = 5 * time.Second
)

type reservationUseCase struct {
	repo     reservation.Repository
	invRepo  inventory.Repository
	locker   cache.Locker
	tx       txn.Manager
	notifier inventory.LowStockNotifier
	logger   logger.ZapLogger
	now      func() time.Time
	ttl      time.Duration
}

type Option func(*reservationUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *reservationUseCase) { uc.now = now }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(uc *reservationUseCase) {
		if ttl > 0 {
			uc.ttl = ttl
		}
	}
}

// NewReservationUseCase builds the engine. locker may be nil, leaving the
// Stock row lock as the only per-variant serialization.
func NewReservationUseCase(
	repo reservation.Repository,
	invRepo inventory.Repository,
	locker cache.Locker,
	tx txn.Manager,
	notifier inventory.LowStockNotifier,
	log logger.ZapLogger,
	opts ...Option,
) reservation.UseCase {
	uc := &reservationUseCase{
		repo:     repo,
		invRepo:  invRepo,
		locker:   locker,
		tx:       tx,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
		ttl:      DefaultTTL,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *reservationUseCase) Reserve(ctx context.Context, input *dto.ReserveInput) (rows []model.StockReservation, err error) {
	if input.VariantID == "" || input.OrderID == "" || input.OrderDetailID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "variant, order and order detail ids are required")
	}
	if input.Quantity <= 0 {
		return nil, apperr.Newf(apperr.InvalidArgument, "reserve quantity must be positive, got %d", input.Quantity)
	}

	ctx, span := observability.StartSpan(ctx, "reservation.Reserve",
		attribute.String("variant_id", input.VariantID),
		attribute.String("order_id", input.OrderID),
		attribute.Int("quantity", input.Quantity),
	)
	defer func() { observability.EndSpan(span, err) }()

	// Inside an enclosing transaction the caller already holds the Stock row
	// or will take it next; waiting on the gate there could deadlock.
	if !txn.InTx(ctx) {
		release, err := uc.lockVariant(ctx, input.VariantID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = uc.ttl
	}
	exclude := make(map[string]bool, len(input.ExcludeBatchIDs))
	for _, id := range input.ExcludeBatchIDs {
		exclude[id] = true
	}

	var reused bool
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		rows, reused = nil, false

		// 1. Serialize on the variant's Stock row
		inv, err := uc.invRepo.GetForUpdate(ctx, input.VariantID)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.Newf(apperr.NotFound, "no stock for variant %s", input.VariantID)
		}
		if input.ReuseExisting {
			existing, err := uc.lineHolds(ctx, input)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				rows = existing
				reused = true
				return nil
			}
		}

		// 2. Allocate over effective availability
		held, err := uc.repo.SumOutstandingByBatch(ctx, input.VariantID)
		if err != nil {
			return err
		}
		now := uc.now()
		allocs, err := model.AllocateFEFO(inv.AvailableBatches(now), held, input.Quantity, exclude)
		if err != nil {
			return err
		}

		// 3. One hold per batch touched
		createdBy := auth.ActorID(ctx)
		for _, a := range allocs {
			r := model.StockReservation{
				ID:               uuid.New().String(),
				OrderID:          input.OrderID,
				OrderDetailID:    input.OrderDetailID,
				VariantID:        input.VariantID,
				BatchID:          a.BatchID,
				ReservedQuantity: a.Quantity,
				Status:           model.ReservationReserved,
				ExpiresAt:        now.Add(ttl),
				CreatedBy:        createdBy,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := uc.repo.Create(ctx, &r); err != nil {
				return err
			}
			rows = append(rows, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reused {
		uc.logger.Info("Order line already reserved",
			zap.String("order_id", input.OrderID),
			zap.String("order_detail_id", input.OrderDetailID),
			zap.Int("reservations", len(rows)),
		)
		return rows, nil
	}

	uc.logger.Info("Stock reserved",
		zap.String("order_id", input.OrderID),
		zap.String("order_detail_id", input.OrderDetailID),
		zap.String("variant_id", input.VariantID),
		zap.Int("quantity", input.Quantity),
		zap.Int("batches", len(rows)),
	)
	return rows, nil
}

// lineHolds returns the Reserved or Committed holds of an order line. A line
// already held for another variant or quantity is a conflicting request.
func (uc *reservationUseCase) lineHolds(ctx context.Context, input *dto.ReserveInput) ([]model.StockReservation, error) {
	all, err := uc.repo.ListByOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	var held []model.StockReservation
	total := 0
	for _, r := range all {
		if r.OrderDetailID != input.OrderDetailID || r.Status == model.ReservationReleased {
			continue
		}
		if r.VariantID != input.VariantID {
			return nil, apperr.Newf(apperr.InvalidState, "order %s line %s is held for variant %s, not %s",
				input.OrderID, input.OrderDetailID, r.VariantID, input.VariantID)
		}
		held = append(held, r)
		total += r.ReservedQuantity
	}
	if len(held) > 0 && total != input.Quantity {
		return nil, apperr.Newf(apperr.InvalidState, "order %s line %s already holds %d units, requested %d",
			input.OrderID, input.OrderDetailID, total, input.Quantity)
	}
	return held, nil
}

// lockVariant takes the distributed gate for a variant. The gate only thins
// out contention on the Stock row: when it stays busy or Redis fails, the row
// lock alone serializes.
func (uc *reservationUseCase) lockVariant(ctx context.Context, variantID string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}

	key := "lock:stock:" + variantID
	lock, err := uc.locker.Obtain(ctx, key, stockLockTTL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, cache.ErrLockNotObtained) {
			uc.logger.Debug("Stock gate busy, queueing on row lock", zap.String("variant_id", variantID))
			return func() {}, nil
		}
		uc.logger.Warn("Stock lock unavailable, relying on row lock",
			zap.String("variant_id", variantID),
			zap.Error(err),
		)
		return func() {}, nil
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn("Failed to release stock lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (uc *reservationUseCase) Commit(ctx context.Context, reservationID string) (committed *model.StockReservation, err error) {
	ctx, span := observability.StartSpan(ctx, "reservation.Commit", attribute.String("reservation_id", reservationID))
	defer func() { observability.EndSpan(span, err) }()

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := uc.lockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		now := uc.now()
		if err := r.Commit(now); err != nil {
			return err
		}

		// The batch was pinned at reservation time; no FEFO walk here.
		inv, err := uc.invRepo.GetForUpdate(ctx, r.VariantID)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.Newf(apperr.NotFound, "no stock for variant %s", r.VariantID)
		}
		before := inv.Stock
		if err := inv.DeductFromBatch(r.BatchID, r.ReservedQuantity, now); err != nil {
			return err
		}
		if err := uc.invRepo.Save(ctx, inv); err != nil {
			return err
		}
		if err := uc.repo.UpdateStatus(ctx, r, model.ReservationReserved); err != nil {
			return err
		}

		after := inv.Stock
		txn.AfterCommit(ctx, func() { uc.notifier.NotifyIfCrossed(ctx, before, after) })
		committed = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Reservation committed",
		zap.String("reservation_id", committed.ID),
		zap.String("batch_id", committed.BatchID),
		zap.Int("quantity", committed.ReservedQuantity),
	)
	return committed, nil
}

func (uc *reservationUseCase) Release(ctx context.Context, reservationID string, reason model.ReleaseReason) (changed bool, err error) {
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := uc.lockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		changed, err = uc.release(ctx, r, reason)
		return err
	})
	if err != nil {
		return false, err
	}

	if changed {
		uc.logger.Info("Reservation released",
			zap.String("reservation_id", reservationID),
			zap.String("reason", string(reason)),
		)
	}
	return changed, nil
}

func (uc *reservationUseCase) release(ctx context.Context, r *model.StockReservation, reason model.ReleaseReason) (bool, error) {
	changed, err := r.Release(uc.now(), reason)
	if err != nil || !changed {
		return false, err
	}
	if err := uc.repo.UpdateStatus(ctx, r, model.ReservationReserved); err != nil {
		return false, err
	}
	return true, nil
}

func (uc *reservationUseCase) lockReservation(ctx context.Context, id string) (*model.StockReservation, error) {
	r, err := uc.repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.Newf(apperr.NotFound, "reservation %s not found", id)
	}
	return r, nil
}

func (uc *reservationUseCase) GetExpired(ctx context.Context, now time.Time, limit int) ([]model.StockReservation, error) {
	return uc.repo.ListExpired(ctx, now, limit)
}

// ReleaseByOrder releases every Reserved hold of the order and returns how
// many changed. Committed holds are left alone.
func (uc *reservationUseCase) ReleaseByOrder(ctx context.Context, orderID string, reason model.ReleaseReason) (int, error) {
	released := 0
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		released = 0
		rows, err := uc.repo.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.Status != model.ReservationReserved {
				continue
			}
			r, err := uc.lockReservation(ctx, row.ID)
			if err != nil {
				return err
			}
			changed, err := uc.release(ctx, r, reason)
			if err != nil {
				return err
			}
			if changed {
				released++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if released > 0 {
		uc.logger.Info("Order reservations released",
			zap.String("order_id", orderID),
			zap.Int("count", released),
			zap.String("reason", string(reason)),
		)
	}
	return released, nil
}

func (uc *reservationUseCase) ListByOrder(ctx context.Context, orderID string) ([]model.StockReservation, error) {
	return uc.repo.ListByOrder(ctx, orderID)
}
