package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/catalog"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"go.uber.org/zap"
)

const variantCacheTTL = 10 * time.Minute

// Cache is the subset of the Redis client the catalog needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type catalogUseCase struct {
	repo   catalog.Repository
	cache  Cache
	logger logger.ZapLogger
}

// NewCatalogUseCase reads variants through cache when one is given.
func NewCatalogUseCase(repo catalog.Repository, cache Cache, log logger.ZapLogger) catalog.UseCase {
	return &catalogUseCase{
		repo:   repo,
		cache:  cache,
		logger: log,
	}
}

func cacheKey(variantID string) string {
	return fmt.Sprintf("catalog:variant:%s", variantID)
}

func (uc *catalogUseCase) GetVariant(ctx context.Context, variantID string) (*model.VariantInfo, error) {
	// 1. Check cache
	if v, ok := uc.fromCache(ctx, variantID); ok {
		return v, nil
	}

	// 2. DB
	v, err := uc.repo.FindVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.Newf(apperr.NotFound, "variant %s not found", variantID)
	}

	// 3. Fill cache
	uc.toCache(ctx, *v)
	return v, nil
}

func (uc *catalogUseCase) GetVariants(ctx context.Context, variantIDs []string) (map[string]model.VariantInfo, error) {
	out := make(map[string]model.VariantInfo, len(variantIDs))
	var missing []string
	for _, id := range variantIDs {
		if _, seen := out[id]; seen {
			continue
		}
		if v, ok := uc.fromCache(ctx, id); ok {
			out[id] = *v
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := uc.repo.FindVariants(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, v := range found {
		out[v.VariantID] = v
		uc.toCache(ctx, v)
	}
	return out, nil
}

func (uc *catalogUseCase) InvalidateVariant(ctx context.Context, variantID string) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.Delete(ctx, cacheKey(variantID))
}

func (uc *catalogUseCase) fromCache(ctx context.Context, variantID string) (*model.VariantInfo, bool) {
	if uc.cache == nil {
		return nil, false
	}
	var v model.VariantInfo
	hit, err := uc.cache.GetJSON(ctx, cacheKey(variantID), &v)
	if err != nil {
		uc.logger.Warn("Variant cache read failed, falling back to DB",
			zap.String("variant_id", variantID),
			zap.Error(err),
		)
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &v, true
}

func (uc *catalogUseCase) toCache(ctx context.Context, v model.VariantInfo) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.SetJSON(ctx, cacheKey(v.VariantID), v, variantCacheTTL); err != nil {
		uc.logger.Warn("Variant cache write failed", zap.String("variant_id", v.VariantID), zap.Error(err))
	}
}
