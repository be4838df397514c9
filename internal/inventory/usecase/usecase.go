package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/observability"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type inventoryUseCase struct {
	repo     inventory.Repository
	holds    inventory.HoldCounter
	tx       txn.Manager
	notifier inventory.LowStockNotifier
	logger   logger.ZapLogger
	now      func() time.Time
}

type Option func(*inventoryUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *inventoryUseCase) { uc.now = now }
}

// NewInventoryUseCase wires the ledger. holds may be nil when no reservation
// store exists, in which case every remaining unit counts as available.
func NewInventoryUseCase(repo inventory.Repository, holds inventory.HoldCounter, tx txn.Manager, notifier inventory.LowStockNotifier, log logger.ZapLogger, opts ...Option) inventory.UseCase {
	uc := &inventoryUseCase{
		repo:     repo,
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

func (uc *inventoryUseCase) ReceiveBatch(ctx context.Context, input *dto.ReceiveBatchInput) (*model.Batch, error) {
	if input.VariantID == "" || strings.TrimSpace(input.BatchCode) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "variant id and batch code are required")
	}

	now := uc.now()
	var location *string
	if input.StorageLocation != "" {
		location = &input.StorageLocation
	}
	b := model.Batch{
		ID:              uuid.New().String(),
		VariantID:       input.VariantID,
		BatchCode:       strings.TrimSpace(input.BatchCode),
		ManufactureDate: input.ManufactureDate,
		ExpiryDate:      input.ExpiryDate,
		ImportQuantity:  input.ImportQuantity,
		StorageLocation: location,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := uc.repo.GetForUpdate(ctx, input.VariantID)
		if err != nil {
			return err
		}
		if inv == nil {
			stock := &model.Stock{
				ID:                uuid.New().String(),
				VariantID:         input.VariantID,
				LowStockThreshold: input.LowStockThreshold,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := uc.repo.CreateStock(ctx, stock); err != nil {
				return err
			}
			// Re-read under lock so the new row is the one we save against.
			if inv, err = uc.repo.GetForUpdate(ctx, input.VariantID); err != nil {
				return err
			}
			if inv == nil {
				return apperr.Newf(apperr.InternalError, "stock row for variant %s vanished after create", input.VariantID)
			}
		}
		if err := inv.AddBatch(b); err != nil {
			return err
		}
		return uc.repo.Save(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	b.RemainingQuantity = b.ImportQuantity
	uc.logger.Info("Batch received",
		zap.String("variant_id", b.VariantID),
		zap.String("batch_code", b.BatchCode),
		zap.Int("quantity", b.ImportQuantity),
	)
	return &b, nil
}

func (uc *inventoryUseCase) load(ctx context.Context, variantID string) (*model.VariantInventory, error) {
	inv, err := uc.repo.Get(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.Newf(apperr.NotFound, "no stock for variant %s", variantID)
	}
	return inv, nil
}

// GetAvailableBatches re-queries on every call.
func (uc *inventoryUseCase) GetAvailableBatches(ctx context.Context, variantID string) ([]model.Batch, error) {
	inv, err := uc.load(ctx, variantID)
	if err != nil {
		return nil, err
	}
	return inv.AvailableBatches(uc.now()), nil
}

func (uc *inventoryUseCase) held(ctx context.Context, variantID string) (map[string]int, error) {
	if uc.holds == nil {
		return nil, nil
	}
	return uc.holds.SumOutstandingByBatch(ctx, variantID)
}

// IsValidForDeduction counts only units no reservation is holding, the same
// rule Deduct applies.
func (uc *inventoryUseCase) IsValidForDeduction(ctx context.Context, variantID string, quantity int) (bool, error) {
	inv, err := uc.load(ctx, variantID)
	if err != nil {
		return false, err
	}
	held, err := uc.held(ctx, variantID)
	if err != nil {
		return false, err
	}
	return model.EffectiveAvailable(inv.Batches, held, uc.now()) >= quantity, nil
}

func (uc *inventoryUseCase) Deduct(ctx context.Context, variantID string, quantity int) (allocs []model.BatchAllocation, err error) {
	ctx, span := observability.StartSpan(ctx, "inventory.Deduct",
		attribute.String("variant_id", variantID), attribute.Int("quantity", quantity))
	defer func() { observability.EndSpan(span, err) }()

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := uc.repo.GetForUpdate(ctx, variantID)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.Newf(apperr.NotFound, "no stock for variant %s", variantID)
		}
		held, err := uc.held(ctx, variantID)
		if err != nil {
			return err
		}
		before := inv.Stock
		allocs, err = inv.DeductUnheld(quantity, uc.now(), held)
		if err != nil {
			return err
		}
		if err := uc.repo.Save(ctx, inv); err != nil {
			return err
		}
		after := inv.Stock
		txn.AfterCommit(ctx, func() { uc.notifier.NotifyIfCrossed(ctx, before, after) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

func (uc *inventoryUseCase) GetStock(ctx context.Context, variantID string) (*model.Stock, error) {
	stock, err := uc.repo.GetStock(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, apperr.Newf(apperr.NotFound, "no stock for variant %s", variantID)
	}
	return stock, nil
}

func (uc *inventoryUseCase) IsLowStock(ctx context.Context, variantID string) (bool, error) {
	stock, err := uc.GetStock(ctx, variantID)
	if err != nil {
		return false, err
	}
	return stock.IsLowStock(), nil
}

func (uc *inventoryUseCase) IsValidToCart(ctx context.Context, variantID string, quantity int) (bool, error) {
	stock, err := uc.GetStock(ctx, variantID)
	if err != nil {
		return false, err
	}
	return stock.IsValidToCart(quantity), nil
}

func (uc *inventoryUseCase) SetLowStockThreshold(ctx context.Context, variantID string, threshold int) error {
	if threshold < 0 {
		return apperr.New(apperr.InvalidArgument, "low stock threshold cannot be negative")
	}
	return uc.repo.UpdateThreshold(ctx, variantID, threshold)
}

func (uc *inventoryUseCase) ListLowStock(ctx context.Context, page, pageSize int) ([]model.Stock, int, error) {
	return uc.repo.FindStocks(ctx, &dto.StockFilters{
		LowStock: true,
		Page:     page,
		PageSize: pageSize,
	})
}
