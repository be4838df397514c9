package model

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
)

// VariantInventory is the Stock row and the batches of one variant, loaded
// and saved together. Every quantity change goes through its methods so that
// Stock.TotalQuantity always equals the sum of the batches' remaining quantity.
type VariantInventory struct {
	Stock   Stock
	Batches []Batch

	dirty   map[string]struct{}
	created map[string]struct{}
}

func NewVariantInventory(stock Stock, batches []Batch) *VariantInventory {
	return &VariantInventory{
		Stock:   stock,
		Batches: batches,
		dirty:   make(map[string]struct{}),
		created: make(map[string]struct{}),
	}
}

func (v *VariantInventory) VariantID() string {
	return v.Stock.VariantID
}

func (v *VariantInventory) batchIndex(batchID string) int {
	for i := range v.Batches {
		if v.Batches[i].ID == batchID {
			return i
		}
	}
	return -1
}

// Batch returns a copy of the batch with the given id.
func (v *VariantInventory) Batch(batchID string) (Batch, bool) {
	i := v.batchIndex(batchID)
	if i < 0 {
		return Batch{}, false
	}
	return v.Batches[i], true
}

// AvailableBatches returns the non-expired batches with stock left, in FEFO order.
func (v *VariantInventory) AvailableBatches(now time.Time) []Batch {
	out := make([]Batch, 0, len(v.Batches))
	for _, b := range v.Batches {
		if b.RemainingQuantity > 0 && !b.IsExpired(now) {
			out = append(out, b)
		}
	}
	SortFEFO(out)
	return out
}

func (v *VariantInventory) Available(now time.Time) int {
	total := 0
	for _, b := range v.AvailableBatches(now) {
		total += b.RemainingQuantity
	}
	return total
}

func (v *VariantInventory) IsValidForDeduction(required int, now time.Time) bool {
	return v.Available(now) >= required
}

// Deduct walks the FEFO order taking quantity from each batch. Nothing is
// changed unless the whole quantity can be covered.
func (v *VariantInventory) Deduct(quantity int, now time.Time) ([]BatchAllocation, error) {
	return v.DeductUnheld(quantity, now, nil)
}

// DeductUnheld is Deduct restricted to the part of each batch that no
// outstanding reservation claims. held maps batch id to held quantity.
func (v *VariantInventory) DeductUnheld(quantity int, now time.Time, held map[string]int) ([]BatchAllocation, error) {
	if quantity <= 0 {
		return nil, apperr.Newf(apperr.InvalidArgument, "deduct quantity must be positive, got %d", quantity)
	}
	if available := EffectiveAvailable(v.Batches, held, now); available < quantity {
		return nil, apperr.Newf(apperr.InsufficientStock,
			"variant %s has %d available, %d requested", v.VariantID(), available, quantity)
	}
	allocs, err := AllocateFEFO(v.AvailableBatches(now), held, quantity, nil)
	if err != nil {
		return nil, err
	}
	if err := v.Stock.Decrease(quantity); err != nil {
		return nil, err
	}

	for _, a := range allocs {
		i := v.batchIndex(a.BatchID)
		v.Batches[i].RemainingQuantity -= a.Quantity
		v.touch(a.BatchID, now)
	}
	v.Stock.UpdatedAt = now
	return allocs, nil
}

// DeductFromBatch takes quantity from one pinned batch, regardless of FEFO order.
func (v *VariantInventory) DeductFromBatch(batchID string, quantity int, now time.Time) error {
	if quantity <= 0 {
		return apperr.Newf(apperr.InvalidArgument, "deduct quantity must be positive, got %d", quantity)
	}
	i := v.batchIndex(batchID)
	if i < 0 {
		return apperr.Newf(apperr.NotFound, "batch %s not found for variant %s", batchID, v.VariantID())
	}
	if v.Batches[i].RemainingQuantity < quantity {
		return apperr.Newf(apperr.InsufficientStock,
			"batch %s has %d remaining, %d requested", v.Batches[i].BatchCode, v.Batches[i].RemainingQuantity, quantity)
	}
	if err := v.Stock.Decrease(quantity); err != nil {
		return err
	}
	v.Batches[i].RemainingQuantity -= quantity
	v.touch(batchID, now)
	v.Stock.UpdatedAt = now
	return nil
}

// Restore credits quantity back into batch headroom, FEFO order, skipping
// expired batches. Fails without changes when the headroom is too small.
func (v *VariantInventory) Restore(quantity int, now time.Time) ([]BatchAllocation, error) {
	if quantity <= 0 {
		return nil, apperr.Newf(apperr.InvalidArgument, "restore quantity must be positive, got %d", quantity)
	}

	candidates := make([]Batch, 0, len(v.Batches))
	room := 0
	for _, b := range v.Batches {
		if b.Headroom() > 0 && !b.IsExpired(now) {
			candidates = append(candidates, b)
			room += b.Headroom()
		}
	}
	if room < quantity {
		return nil, apperr.Newf(apperr.InvalidState,
			"variant %s can take back %d units into live batches, %d requested", v.VariantID(), room, quantity)
	}
	SortFEFO(candidates)

	if err := v.Stock.Increase(quantity); err != nil {
		return nil, err
	}
	var allocs []BatchAllocation
	left := quantity
	for _, b := range candidates {
		if left == 0 {
			break
		}
		give := min(left, b.Headroom())
		i := v.batchIndex(b.ID)
		v.Batches[i].RemainingQuantity += give
		v.touch(b.ID, now)
		allocs = append(allocs, BatchAllocation{BatchID: b.ID, BatchCode: b.BatchCode, Quantity: give, ExpiryDate: b.ExpiryDate})
		left -= give
	}
	v.Stock.UpdatedAt = now
	return allocs, nil
}

// AdjustBatch applies a signed correction to one batch and returns the
// remaining quantity before and after.
func (v *VariantInventory) AdjustBatch(batchID string, delta int, now time.Time) (int, int, error) {
	i := v.batchIndex(batchID)
	if i < 0 {
		return 0, 0, apperr.Newf(apperr.NotFound, "batch %s not found for variant %s", batchID, v.VariantID())
	}
	b := &v.Batches[i]
	before := b.RemainingQuantity
	after := before + delta

	switch {
	case delta == 0:
		return 0, 0, apperr.New(apperr.InvalidArgument, "adjustment quantity must not be zero")
	case after < 0:
		return 0, 0, apperr.Newf(apperr.InsufficientStock,
			"batch %s has %d remaining, cannot remove %d", b.BatchCode, before, -delta)
	case after > b.ImportQuantity:
		return 0, 0, apperr.Newf(apperr.InvalidState,
			"batch %s would hold %d, above its import quantity %d", b.BatchCode, after, b.ImportQuantity)
	}

	var err error
	if delta > 0 {
		err = v.Stock.Increase(delta)
	} else {
		err = v.Stock.Decrease(-delta)
	}
	if err != nil {
		return 0, 0, err
	}
	b.RemainingQuantity = after
	v.touch(batchID, now)
	v.Stock.UpdatedAt = now
	return before, after, nil
}

// AddBatch registers a newly received lot and raises the stock by its
// import quantity.
func (v *VariantInventory) AddBatch(b Batch) error {
	if b.VariantID != v.VariantID() {
		return apperr.Newf(apperr.InvalidArgument, "batch belongs to variant %s, not %s", b.VariantID, v.VariantID())
	}
	if b.ImportQuantity <= 0 {
		return apperr.New(apperr.InvalidArgument, "import quantity must be positive")
	}
	if !b.ExpiryDate.After(b.ManufactureDate) {
		return apperr.New(apperr.InvalidArgument, "expiry date must be after manufacture date")
	}
	for _, existing := range v.Batches {
		if existing.BatchCode == b.BatchCode {
			return apperr.Newf(apperr.InvalidState, "batch code %s already exists for variant %s", b.BatchCode, v.VariantID())
		}
	}
	b.RemainingQuantity = b.ImportQuantity
	if err := v.Stock.Increase(b.ImportQuantity); err != nil {
		return err
	}
	v.Batches = append(v.Batches, b)
	v.created[b.ID] = struct{}{}
	v.Stock.UpdatedAt = b.CreatedAt
	return nil
}

func (v *VariantInventory) touch(batchID string, now time.Time) {
	i := v.batchIndex(batchID)
	v.Batches[i].UpdatedAt = now
	if _, isNew := v.created[batchID]; !isNew {
		v.dirty[batchID] = struct{}{}
	}
}

// NewBatches are the batches added since load.
func (v *VariantInventory) NewBatches() []Batch {
	var out []Batch
	for _, b := range v.Batches {
		if _, ok := v.created[b.ID]; ok {
			out = append(out, b)
		}
	}
	return out
}

// ChangedBatches are the pre-existing batches modified since load.
func (v *VariantInventory) ChangedBatches() []Batch {
	var out []Batch
	for _, b := range v.Batches {
		if _, ok := v.dirty[b.ID]; ok {
			out = append(out, b)
		}
	}
	return out
}

// MarkClean is called by repositories after a successful save.
func (v *VariantInventory) MarkClean() {
	v.dirty = make(map[string]struct{})
	v.created = make(map[string]struct{})
}

func (v *VariantInventory) CheckInvariant() error {
	sum := 0
	for _, b := range v.Batches {
		if b.RemainingQuantity < 0 || b.RemainingQuantity > b.ImportQuantity {
			return apperr.Newf(apperr.InternalError, "batch %s remaining %d outside [0,%d]", b.BatchCode, b.RemainingQuantity, b.ImportQuantity)
		}
		sum += b.RemainingQuantity
	}
	if sum != v.Stock.TotalQuantity {
		return apperr.Newf(apperr.InternalError, "variant %s stock %d != batch sum %d", v.VariantID(), v.Stock.TotalQuantity, sum)
	}
	return nil
}
