package catalog

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type UseCase interface {
	GetVariant(ctx context.Context, variantID string) (*model.VariantInfo, error)
	// GetVariants resolves several variants at once, keyed by variant id.
	// Unknown ids are absent from the map.
	GetVariants(ctx context.Context, variantIDs []string) (map[string]model.VariantInfo, error)
	InvalidateVariant(ctx context.Context, variantID string) error
}
