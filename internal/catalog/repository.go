package catalog

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	// FindVariant returns nil, nil when the variant does not exist.
	FindVariant(ctx context.Context, variantID string) (*model.VariantInfo, error)
	FindVariants(ctx context.Context, variantIDs []string) ([]model.VariantInfo, error)
}
