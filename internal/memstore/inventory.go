package memstore

import (
	"context"
	"sort"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type InventoryRepository struct {
	s *Store
}

func (r *InventoryRepository) Get(ctx context.Context, variantID string) (*model.VariantInventory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.load(variantID), nil
}

func (r *InventoryRepository) GetForUpdate(ctx context.Context, variantID string) (*model.VariantInventory, error) {
	if err := r.s.requireTx(ctx, "GetForUpdate"); err != nil {
		return nil, err
	}
	return r.Get(ctx, variantID)
}

// load must be called with the data lock held.
func (r *InventoryRepository) load(variantID string) *model.VariantInventory {
	stock, ok := r.s.stocks[variantID]
	if !ok {
		return nil
	}
	var batches []model.Batch
	for _, b := range r.s.batches {
		if b.VariantID == variantID {
			batches = append(batches, b)
		}
	}
	model.SortFEFO(batches)
	return model.NewVariantInventory(stock, batches)
}

func (r *InventoryRepository) CreateStock(ctx context.Context, stock *model.Stock) error {
	return r.s.write(ctx, func() error {
		if _, exists := r.s.stocks[stock.VariantID]; exists {
			return nil
		}
		r.s.stocks[stock.VariantID] = *stock
		return nil
	})
}

func (r *InventoryRepository) Save(ctx context.Context, inv *model.VariantInventory) error {
	if err := r.s.requireTx(ctx, "Save"); err != nil {
		return err
	}
	return r.s.write(ctx, func() error {
		stored, ok := r.s.stocks[inv.VariantID()]
		if !ok || stored.Version != inv.Stock.Version {
			return apperr.Newf(apperr.ConcurrencyConflict, "stock for variant %s changed concurrently", inv.VariantID())
		}

		for _, b := range inv.NewBatches() {
			for _, existing := range r.s.batches {
				if existing.VariantID == b.VariantID && existing.BatchCode == b.BatchCode {
					return apperr.Newf(apperr.InvalidState, "batch code %s already exists for variant %s", b.BatchCode, b.VariantID)
				}
			}
			r.s.batches[b.ID] = b
		}
		for _, b := range inv.ChangedBatches() {
			r.s.batches[b.ID] = b
		}

		next := inv.Stock
		next.LowStockThreshold = stored.LowStockThreshold
		next.Version++
		r.s.stocks[inv.VariantID()] = next

		inv.Stock.Version++
		inv.MarkClean()
		return nil
	})
}

func (r *InventoryRepository) GetStock(ctx context.Context, variantID string) (*model.Stock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stock, ok := r.s.stocks[variantID]
	if !ok {
		return nil, nil
	}
	return &stock, nil
}

func (r *InventoryRepository) UpdateThreshold(ctx context.Context, variantID string, threshold int) error {
	return r.s.write(ctx, func() error {
		stock, ok := r.s.stocks[variantID]
		if !ok {
			return apperr.Newf(apperr.NotFound, "no stock for variant %s", variantID)
		}
		stock.LowStockThreshold = threshold
		stock.Version++
		r.s.stocks[variantID] = stock
		return nil
	})
}

func (r *InventoryRepository) FindStocks(ctx context.Context, f *dto.StockFilters) ([]model.Stock, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var items []model.Stock
	for _, s := range r.s.stocks {
		if f.LowStock && !s.IsLowStock() {
			continue
		}
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].TotalQuantity != items[j].TotalQuantity {
			return items[i].TotalQuantity < items[j].TotalQuantity
		}
		return items[i].VariantID < items[j].VariantID
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *InventoryRepository) GetBatchesByIDs(ctx context.Context, ids []string) ([]model.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []model.Batch{}
	for _, id := range ids {
		if b, ok := r.s.batches[id]; ok {
			items = append(items, b)
		}
	}
	return items, nil
}

// Seed loads batches as they are, creating the variant's stock row when
// missing and keeping its total equal to the sum of remaining quantities.
func (r *InventoryRepository) Seed(variantID string, threshold int, batches ...model.Batch) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stock, ok := r.s.stocks[variantID]
	if !ok {
		stock = model.Stock{ID: "stock-" + variantID, VariantID: variantID, LowStockThreshold: threshold}
	}
	for _, b := range batches {
		b.VariantID = variantID
		r.s.batches[b.ID] = b
		stock.TotalQuantity += b.RemainingQuantity
	}
	r.s.stocks[variantID] = stock
}
