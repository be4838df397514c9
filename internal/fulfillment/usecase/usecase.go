package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment"
	adjustmentdto "github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/catalog"
	"github.com/fekuna/omnipos-inventory-service/internal/fulfillment"
	"github.com/fekuna/omnipos-inventory-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/observability"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	reservationdto "github.com/fekuna/omnipos-inventory-service/internal/reservation/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const refReservation = "reservation"

type fulfillmentUseCase struct {
	reservations reservation.UseCase
	adjustments  adjustment.UseCase
	invRepo      inventory.Repository
	catalog      catalog.UseCase
	shipping     fulfillment.ShippingCreator
	tx           txn.Manager
	logger       logger.ZapLogger
	now          func() time.Time
}

type Option func(*fulfillmentUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *fulfillmentUseCase) { uc.now = now }
}

func NewFulfillmentUseCase(
	reservations reservation.UseCase,
	adjustments adjustment.UseCase,
	invRepo inventory.Repository,
	variants catalog.UseCase,
	shipping fulfillment.ShippingCreator,
	tx txn.Manager,
	log logger.ZapLogger,
	opts ...Option,
) fulfillment.UseCase {
	uc := &fulfillmentUseCase{
		reservations: reservations,
		adjustments:  adjustments,
		invRepo:      invRepo,
		catalog:      variants,
		shipping:     shipping,
		tx:           tx,
		logger:       log,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *fulfillmentUseCase) GetPickList(ctx context.Context, orderID string) (*dto.PickList, error) {
	rows, err := uc.reservations.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.Newf(apperr.NotFound, "order %s has no reservations", orderID)
	}
	held := reservedOnly(rows)

	batches, err := uc.batchesOf(ctx, held)
	if err != nil {
		return nil, err
	}

	variantIDs := make([]string, 0, len(held))
	for _, r := range held {
		variantIDs = append(variantIDs, r.VariantID)
	}
	variants, err := uc.catalog.GetVariants(ctx, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve variants: %w", err)
	}

	list := &dto.PickList{OrderID: orderID, Lines: []dto.PickLine{}}
	index := make(map[string]int)
	for _, r := range held {
		i, ok := index[r.OrderDetailID]
		if !ok {
			i = len(list.Lines)
			index[r.OrderDetailID] = i
			list.Lines = append(list.Lines, dto.PickLine{
				OrderDetailID: r.OrderDetailID,
				VariantID:     r.VariantID,
				Variant:       variants[r.VariantID],
			})
		}
		line := &list.Lines[i]
		line.Quantity += r.ReservedQuantity
		line.Entries = append(line.Entries, pickEntry(r, batches[r.BatchID]))
	}

	sort.Slice(list.Lines, func(i, j int) bool { return list.Lines[i].OrderDetailID < list.Lines[j].OrderDetailID })
	for _, line := range list.Lines {
		sort.SliceStable(line.Entries, func(i, j int) bool {
			return line.Entries[i].ExpiryDate.Before(line.Entries[j].ExpiryDate)
		})
	}
	return list, nil
}

func (uc *fulfillmentUseCase) FulfillOrder(ctx context.Context, input *dto.FulfillInput) (result *dto.FulfillResult, err error) {
	if input.OrderID == "" || len(input.Items) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "order id and scanned items are required")
	}

	ctx, span := observability.StartSpan(ctx, "fulfillment.FulfillOrder",
		attribute.String("order_id", input.OrderID), attribute.Int("scanned", len(input.Items)))
	defer func() { observability.EndSpan(span, err) }()

	if input.StaffID != "" {
		ctx = auth.WithActor(ctx, auth.Actor{UserID: input.StaffID})
	}

	result = &dto.FulfillResult{OrderID: input.OrderID}
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		result.Committed = nil

		rows, err := uc.reservations.ListByOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		held := reservedOnly(rows)
		if len(held) == 0 {
			return apperr.Newf(apperr.InvalidState, "order %s has no reserved stock to fulfill", input.OrderID)
		}
		batches, err := uc.batchesOf(ctx, held)
		if err != nil {
			return err
		}

		matched, err := match(held, batches, input.Items)
		if err != nil {
			return err
		}

		// Commit in variant order so Stock rows are locked consistently.
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].VariantID < matched[j].VariantID })
		for _, r := range matched {
			committed, err := uc.reservations.Commit(ctx, r.ID)
			if err != nil {
				return fmt.Errorf("commit reservation %s: %w", r.ID, err)
			}
			result.Committed = append(result.Committed, *committed)
		}
		return nil
	})
	if err != nil {
		uc.logger.Warn("Fulfillment rejected",
			zap.String("order_id", input.OrderID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	uc.logger.Info("Order fulfilled",
		zap.String("order_id", input.OrderID),
		zap.String("staff_id", input.StaffID),
		zap.Int("reservations", len(result.Committed)),
	)

	// Inventory is final from here; a shipping failure is retried separately.
	ref, shipErr := uc.shipping.CreateShippingOrder(ctx, shipment(input, result.Committed))
	if shipErr != nil {
		uc.logger.Error("Failed to request shipping",
			zap.String("order_id", input.OrderID),
			zap.Error(shipErr),
		)
		result.ShippingError = shipErr.Error()
		return result, nil
	}
	result.TrackingRef = ref
	return result, nil
}

// match pairs every scanned item with exactly one reserved hold of the same
// order detail, batch code and quantity. Every hold must be claimed.
func match(held []model.StockReservation, batches map[string]model.Batch, items []dto.ScannedItem) ([]model.StockReservation, error) {
	claimed := make([]bool, len(held))
	for _, it := range items {
		found := -1
		for i, r := range held {
			if claimed[i] || r.OrderDetailID != it.OrderDetailID {
				continue
			}
			if batches[r.BatchID].BatchCode == it.BatchCode && r.ReservedQuantity == it.Quantity {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, apperr.Newf(apperr.BatchMismatch,
				"order detail %s: scanned %d of batch %q matches no reserved hold", it.OrderDetailID, it.Quantity, it.BatchCode)
		}
		claimed[found] = true
	}

	for i, r := range held {
		if !claimed[i] {
			return nil, apperr.Newf(apperr.BatchMismatch,
				"order detail %s: batch %q was not scanned", r.OrderDetailID, batches[r.BatchID].BatchCode)
		}
	}
	return held, nil
}

func shipment(input *dto.FulfillInput, committed []model.StockReservation) *dto.ShipmentInput {
	s := &dto.ShipmentInput{
		OrderID:   input.OrderID,
		StaffID:   input.StaffID,
		Recipient: input.Recipient,
	}
	for _, r := range committed {
		s.Parcels = append(s.Parcels, dto.Parcel{
			OrderDetailID: r.OrderDetailID,
			VariantID:     r.VariantID,
			BatchID:       r.BatchID,
			Quantity:      r.ReservedQuantity,
		})
	}
	return s
}

func (uc *fulfillmentUseCase) SwapDamagedStock(ctx context.Context, input *dto.SwapInput) (result *dto.SwapResult, err error) {
	if input.OrderID == "" || input.OrderDetailID == "" || input.DamagedReservationID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "order, order detail and reservation ids are required")
	}

	ctx, span := observability.StartSpan(ctx, "fulfillment.SwapDamagedStock",
		attribute.String("order_id", input.OrderID),
		attribute.String("reservation_id", input.DamagedReservationID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if input.StaffID != "" {
		ctx = auth.WithActor(ctx, auth.Actor{UserID: input.StaffID})
	}

	var damaged model.StockReservation
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		result = &dto.SwapResult{ReleasedReservationID: input.DamagedReservationID}

		rows, err := uc.reservations.ListByOrder(ctx, input.OrderID)
		if err != nil {
			return err
		}
		found := false
		for _, r := range rows {
			if r.ID == input.DamagedReservationID && r.OrderDetailID == input.OrderDetailID {
				damaged, found = r, true
				break
			}
		}
		if !found {
			return apperr.Newf(apperr.NotFound, "reservation %s not found on order detail %s", input.DamagedReservationID, input.OrderDetailID)
		}

		// An expired hold has no window left to carry over; the sweeper owns it.
		if damaged.Status == model.ReservationReserved && !damaged.ExpiresAt.After(uc.now()) {
			return apperr.Newf(apperr.InvalidState, "reservation %s expired at %s", damaged.ID, damaged.ExpiresAt.Format(time.RFC3339))
		}

		// 1. Drop the hold
		changed, err := uc.reservations.Release(ctx, damaged.ID, model.ReleaseDamaged)
		if err != nil {
			return err
		}
		if !changed {
			return apperr.Newf(apperr.InvalidState, "reservation %s is already released", damaged.ID)
		}

		// 2. Write the damaged units off the batch
		_, err = uc.adjustments.Record(ctx, &adjustmentdto.RecordInput{
			VariantID:     damaged.VariantID,
			BatchID:       damaged.BatchID,
			Reason:        model.AdjustmentDamage,
			Quantity:      -damaged.ReservedQuantity,
			ReferenceType: refReservation,
			ReferenceID:   damaged.ID,
			Note:          input.Note,
		})
		if err != nil {
			return fmt.Errorf("record damage: %w", err)
		}

		// 3. Hold the same quantity elsewhere, keeping what is left of the hold window
		ttl := damaged.ExpiresAt.Sub(uc.now())
		replacements, err := uc.reservations.Reserve(ctx, &reservationdto.ReserveInput{
			VariantID:       damaged.VariantID,
			OrderID:         damaged.OrderID,
			OrderDetailID:   damaged.OrderDetailID,
			Quantity:        damaged.ReservedQuantity,
			TTL:             ttl,
			ExcludeBatchIDs: []string{damaged.BatchID},
		})
		if err != nil {
			return err
		}

		batches, err := uc.batchesOf(ctx, replacements)
		if err != nil {
			return err
		}
		for _, r := range replacements {
			result.Replacements = append(result.Replacements, pickEntry(r, batches[r.BatchID]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Damaged stock swapped",
		zap.String("order_id", input.OrderID),
		zap.String("order_detail_id", input.OrderDetailID),
		zap.String("damaged_batch_id", damaged.BatchID),
		zap.Int("quantity", damaged.ReservedQuantity),
		zap.Int("replacements", len(result.Replacements)),
	)
	return result, nil
}

func (uc *fulfillmentUseCase) batchesOf(ctx context.Context, rows []model.StockReservation) (map[string]model.Batch, error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.BatchID)
	}
	found, err := uc.invRepo.GetBatchesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Batch, len(found))
	for _, b := range found {
		out[b.ID] = b
	}
	return out, nil
}

func reservedOnly(rows []model.StockReservation) []model.StockReservation {
	var out []model.StockReservation
	for _, r := range rows {
		if r.Status == model.ReservationReserved {
			out = append(out, r)
		}
	}
	return out
}

func pickEntry(r model.StockReservation, b model.Batch) dto.PickEntry {
	return dto.PickEntry{
		ReservationID:   r.ID,
		BatchID:         r.BatchID,
		BatchCode:       b.BatchCode,
		StorageLocation: b.Location(),
		ExpiryDate:      b.ExpiryDate,
		Quantity:        r.ReservedQuantity,
	}
}
