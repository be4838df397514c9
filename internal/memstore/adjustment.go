package memstore

import (
	"context"
	"sort"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type AdjustmentRepository struct {
	s *Store
}

func (r *AdjustmentRepository) Create(ctx context.Context, a *model.StockAdjustment) error {
	return r.s.write(ctx, func() error {
		r.s.adjustments = append(r.s.adjustments, *a)
		return nil
	})
}

func (r *AdjustmentRepository) List(ctx context.Context, f *dto.AdjustmentFilters) ([]model.StockAdjustment, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []model.StockAdjustment{}
	for _, a := range r.s.adjustments {
		if f.VariantID != "" && a.VariantID != f.VariantID {
			continue
		}
		if f.BatchID != "" && a.BatchID != f.BatchID {
			continue
		}
		if f.Reason != "" && a.Reason != f.Reason {
			continue
		}
		if f.ReferenceType != "" && (a.ReferenceType == nil || *a.ReferenceType != f.ReferenceType) {
			continue
		}
		if f.ReferenceID != "" && (a.ReferenceID == nil || *a.ReferenceID != f.ReferenceID) {
			continue
		}
		items = append(items, a)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}
