package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const variantColumns = `
        v.id AS variant_id, p.id AS product_id, v.sku, p.name AS product_name,
        v.volume_ml, COALESCE(c.name, '') AS concentration_name, p.type, v.base_price,
        (v.is_active AND p.is_active) AS is_active
    FROM product_variants v
    JOIN products p ON p.id = v.product_id
    LEFT JOIN concentrations c ON c.id = v.concentration_id`

func (r *PGRepository) FindVariant(ctx context.Context, variantID string) (*model.VariantInfo, error) {
	var v model.VariantInfo
	query := `SELECT ` + variantColumns + ` WHERE v.id = $1 LIMIT 1`
	err := r.DB.GetContext(ctx, &v, query, variantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.FromDB("find variant", err)
	}
	return &v, nil
}

func (r *PGRepository) FindVariants(ctx context.Context, variantIDs []string) ([]model.VariantInfo, error) {
	if len(variantIDs) == 0 {
		return []model.VariantInfo{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+variantColumns+` WHERE v.id IN (?)`, variantIDs)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	var items []model.VariantInfo
	if err := r.DB.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, apperr.FromDB("find variants", err)
	}
	return items, nil
}
