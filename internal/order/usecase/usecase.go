package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment"
	adjustmentdto "github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/observability"
	"github.com/fekuna/omnipos-inventory-service/internal/order"
	"github.com/fekuna/omnipos-inventory-service/internal/order/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	reservationdto "github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	refOrder       = "order"
	refReservation = "reservation"
)

type orderUseCase struct {
	inventory    inventory.UseCase
	reservations reservation.UseCase
	adjustments  adjustment.UseCase
	tx           txn.Manager
	logger       logger.ZapLogger
}

func NewOrderUseCase(
	inv inventory.UseCase,
	reservations reservation.UseCase,
	adjustments adjustment.UseCase,
	tx txn.Manager,
	log logger.ZapLogger,
) order.UseCase {
	return &orderUseCase{
		inventory:    inv,
		reservations: reservations,
		adjustments:  adjustments,
		tx:           tx,
		logger:       log,
	}
}

// merge sums quantities per variant, keeping first-seen order.
func merge(items []dto.OrderItem) ([]dto.OrderItem, error) {
	var out []dto.OrderItem
	index := make(map[string]int)
	for _, it := range items {
		if it.VariantID == "" {
			return nil, apperr.New(apperr.InvalidArgument, "order item without variant id")
		}
		if it.Quantity <= 0 {
			return nil, apperr.Newf(apperr.InvalidArgument, "quantity for variant %s must be positive, got %d", it.VariantID, it.Quantity)
		}
		if i, ok := index[it.VariantID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.VariantID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func (uc *orderUseCase) ValidateStockAvailability(ctx context.Context, items []dto.OrderItem) error {
	merged, err := merge(items)
	if err != nil {
		return err
	}

	for _, it := range merged {
		// Fast pre-check on the denormalized counter
		ok, err := uc.inventory.IsValidToCart(ctx, it.VariantID, it.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Newf(apperr.InsufficientStock, "variant %s: not enough stock for %d units", it.VariantID, it.Quantity)
		}

		// Precise check over live batches
		ok, err = uc.inventory.IsValidForDeduction(ctx, it.VariantID, it.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Newf(apperr.InsufficientStock, "variant %s: not enough unexpired, unreserved stock for %d units", it.VariantID, it.Quantity)
		}
	}
	return nil
}

func (uc *orderUseCase) DeductInventory(ctx context.Context, items []dto.OrderItem) (result []dto.ItemAllocation, err error) {
	ctx, span := observability.StartSpan(ctx, "order.DeductInventory", attribute.Int("items", len(items)))
	defer func() { observability.EndSpan(span, err) }()

	merged, err := merge(items)
	if err != nil {
		return nil, err
	}

	for _, it := range merged {
		allocs, err := uc.inventory.Deduct(ctx, it.VariantID, it.Quantity)
		if err != nil {
			return nil, fmt.Errorf("deduct variant %s: %w", it.VariantID, err)
		}
		result = append(result, dto.ItemAllocation{VariantID: it.VariantID, Allocations: allocs})
	}
	return result, nil
}

func (uc *orderUseCase) RestoreInventory(ctx context.Context, orderID string, items []dto.OrderItem) error {
	merged, err := merge(items)
	if err != nil {
		return err
	}

	return uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, it := range merged {
			_, err := uc.adjustments.Record(ctx, &adjustmentdto.RecordInput{
				VariantID:     it.VariantID,
				Reason:        model.AdjustmentReturn,
				Quantity:      it.Quantity,
				ReferenceType: refOrder,
				ReferenceID:   orderID,
				Note:          "order restore",
			})
			if err != nil {
				return fmt.Errorf("restore variant %s: %w", it.VariantID, err)
			}
		}
		return nil
	})
}

func (uc *orderUseCase) ReserveOrder(ctx context.Context, input *dto.ReserveOrderInput) (rows []model.StockReservation, err error) {
	if input.OrderID == "" || len(input.Lines) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "order id and at least one line are required")
	}

	seen := make(map[string]bool, len(input.Lines))
	for _, line := range input.Lines {
		if seen[line.OrderDetailID] {
			return nil, apperr.Newf(apperr.InvalidArgument, "order detail %s appears twice", line.OrderDetailID)
		}
		seen[line.OrderDetailID] = true
	}

	ctx, span := observability.StartSpan(ctx, "order.ReserveOrder",
		attribute.String("order_id", input.OrderID), attribute.Int("lines", len(input.Lines)))
	defer func() { observability.EndSpan(span, err) }()

	// Lock Stock rows in variant order so two orders never wait on each other.
	lines := append([]dto.OrderLine(nil), input.Lines...)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		rows = nil
		for _, line := range lines {
			held, err := uc.reservations.Reserve(ctx, &reservationdto.ReserveInput{
				VariantID:     line.VariantID,
				OrderID:       input.OrderID,
				OrderDetailID: line.OrderDetailID,
				Quantity:      line.Quantity,
				TTL:           input.TTL,
				ReuseExisting: true,
			})
			if err != nil {
				return fmt.Errorf("reserve line %s: %w", line.OrderDetailID, err)
			}
			rows = append(rows, held...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Order reserved",
		zap.String("order_id", input.OrderID),
		zap.Int("lines", len(lines)),
		zap.Int("reservations", len(rows)),
	)
	return rows, nil
}

// CancelOrder releases the order's open holds and returns committed units to
// their batches. Running it again changes nothing.
func (uc *orderUseCase) CancelOrder(ctx context.Context, orderID string) (*dto.CancelResult, error) {
	res := &dto.CancelResult{}
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		*res = dto.CancelResult{}

		rows, err := uc.reservations.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if res.Released, err = uc.reservations.ReleaseByOrder(ctx, orderID, model.ReleaseCancelled); err != nil {
			return err
		}

		for _, r := range rows {
			if r.Status != model.ReservationCommitted {
				continue
			}
			_, done, err := uc.adjustments.List(ctx, &adjustmentdto.AdjustmentFilters{
				Reason:        model.AdjustmentReturn,
				ReferenceType: refReservation,
				ReferenceID:   r.ID,
			})
			if err != nil {
				return err
			}
			if done > 0 {
				continue
			}
			_, err = uc.adjustments.Record(ctx, &adjustmentdto.RecordInput{
				VariantID:     r.VariantID,
				BatchID:       r.BatchID,
				Reason:        model.AdjustmentReturn,
				Quantity:      r.ReservedQuantity,
				ReferenceType: refReservation,
				ReferenceID:   r.ID,
				Note:          "order cancelled: " + orderID,
			})
			if err != nil {
				return fmt.Errorf("return reservation %s: %w", r.ID, err)
			}
			res.Restored += r.ReservedQuantity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.Int("released", res.Released),
		zap.Int("restored", res.Restored),
	)
	return res, nil
}
