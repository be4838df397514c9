package usecase

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment"
	"github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type adjustmentUseCase struct {
	repo     adjustment.Repository
	invRepo  inventory.Repository
	holds    inventory.HoldCounter
	tx       txn.Manager
	notifier inventory.LowStockNotifier
	logger   logger.ZapLogger
	now      func() time.Time
}

type Option func(*adjustmentUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *adjustmentUseCase) { uc.now = now }
}

func NewAdjustmentUseCase(
	repo adjustment.Repository,
	invRepo inventory.Repository,
	holds inventory.HoldCounter,
	tx txn.Manager,
	notifier inventory.LowStockNotifier,
	log logger.ZapLogger,
	opts ...Option,
) adjustment.UseCase {
	uc := &adjustmentUseCase{
		repo:     repo,
		invRepo:  invRepo,
		holds:    holds,
		tx:       tx,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func validate(input *dto.RecordInput) error {
	if input.VariantID == "" {
		return apperr.New(apperr.InvalidArgument, "variant id is required")
	}
	if !input.Reason.Valid() {
		return apperr.Newf(apperr.InvalidArgument, "unknown adjustment reason %q", input.Reason)
	}
	if input.Quantity == 0 {
		return apperr.New(apperr.InvalidArgument, "adjustment quantity must not be zero")
	}
	switch sign := input.Reason.Sign(); {
	case sign < 0 && input.Quantity > 0:
		return apperr.Newf(apperr.InvalidArgument, "%s adjustments can only remove stock", input.Reason)
	case sign > 0 && input.Quantity < 0:
		return apperr.Newf(apperr.InvalidArgument, "%s adjustments can only add stock", input.Reason)
	}
	if input.BatchID == "" && input.Reason != model.AdjustmentReturn {
		return apperr.Newf(apperr.InvalidArgument, "%s adjustments need a batch", input.Reason)
	}
	return nil
}

func (uc *adjustmentUseCase) Record(ctx context.Context, input *dto.RecordInput) ([]model.StockAdjustment, error) {
	if err := validate(input); err != nil {
		return nil, err
	}

	var rows []model.StockAdjustment
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		rows = nil

		inv, err := uc.invRepo.GetForUpdate(ctx, input.VariantID)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.Newf(apperr.NotFound, "no stock for variant %s", input.VariantID)
		}
		before := inv.Stock
		now := uc.now()

		if input.BatchID == "" {
			rows, err = uc.restore(inv, input, now)
		} else {
			rows, err = uc.adjustBatch(ctx, inv, input, now)
		}
		if err != nil {
			return err
		}

		if err := uc.invRepo.Save(ctx, inv); err != nil {
			return err
		}
		createdBy := auth.ActorID(ctx)
		for i := range rows {
			rows[i].CreatedBy = createdBy
			if err := uc.repo.Create(ctx, &rows[i]); err != nil {
				return err
			}
		}

		after := inv.Stock
		txn.AfterCommit(ctx, func() { uc.notifier.NotifyIfCrossed(ctx, before, after) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Stock adjusted",
		zap.String("variant_id", input.VariantID),
		zap.String("reason", string(input.Reason)),
		zap.Int("quantity", input.Quantity),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

func (uc *adjustmentUseCase) adjustBatch(ctx context.Context, inv *model.VariantInventory, input *dto.RecordInput, now time.Time) ([]model.StockAdjustment, error) {
	before, after, err := inv.AdjustBatch(input.BatchID, input.Quantity, now)
	if err != nil {
		return nil, err
	}

	// Removing stock must not leave a batch holding less than its open reservations.
	if input.Quantity < 0 && uc.holds != nil {
		held, err := uc.holds.SumOutstandingByBatch(ctx, input.VariantID)
		if err != nil {
			return nil, err
		}
		if h := held[input.BatchID]; after < h {
			return nil, apperr.Newf(apperr.InvalidState,
				"batch %s would keep %d units but %d are reserved", input.BatchID, after, h)
		}
	}

	return []model.StockAdjustment{uc.entry(input, input.BatchID, input.Quantity, before, after, now)}, nil
}

func (uc *adjustmentUseCase) restore(inv *model.VariantInventory, input *dto.RecordInput, now time.Time) ([]model.StockAdjustment, error) {
	remaining := make(map[string]int, len(inv.Batches))
	for _, b := range inv.Batches {
		remaining[b.ID] = b.RemainingQuantity
	}

	allocs, err := inv.Restore(input.Quantity, now)
	if err != nil {
		return nil, err
	}

	rows := make([]model.StockAdjustment, 0, len(allocs))
	for _, a := range allocs {
		before := remaining[a.BatchID]
		rows = append(rows, uc.entry(input, a.BatchID, a.Quantity, before, before+a.Quantity, now))
	}
	return rows, nil
}

func (uc *adjustmentUseCase) entry(input *dto.RecordInput, batchID string, change, before, after int, now time.Time) model.StockAdjustment {
	a := model.StockAdjustment{
		ID:             uuid.New().String(),
		VariantID:      input.VariantID,
		BatchID:        batchID,
		Reason:         input.Reason,
		QuantityChange: change,
		QuantityBefore: before,
		QuantityAfter:  after,
		Note:           input.Note,
		CreatedAt:      now,
	}
	if input.ReferenceType != "" {
		refType := input.ReferenceType
		a.ReferenceType = &refType
	}
	if input.ReferenceID != "" {
		refID := input.ReferenceID
		a.ReferenceID = &refID
	}
	return a
}

func (uc *adjustmentUseCase) List(ctx context.Context, filters *dto.AdjustmentFilters) ([]model.StockAdjustment, int, error) {
	return uc.repo.List(ctx, filters)
}
