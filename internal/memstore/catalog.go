package memstore

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type CatalogRepository struct {
	s *Store
}

// PutVariant registers or replaces a catalog entry.
func (r *CatalogRepository) PutVariant(v model.VariantInfo) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.variants[v.VariantID] = v
}

func (r *CatalogRepository) FindVariant(ctx context.Context, variantID string) (*model.VariantInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.variants[variantID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *CatalogRepository) FindVariants(ctx context.Context, variantIDs []string) ([]model.VariantInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []model.VariantInfo{}
	for _, id := range variantIDs {
		if v, ok := r.s.variants[id]; ok {
			items = append(items, v)
		}
	}
	return items, nil
}
