package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, a *model.StockAdjustment) error {
	query := `
        INSERT INTO stock_adjustments (
            id, variant_id, batch_id, reason, quantity_change, quantity_before, quantity_after,
            reference_type, reference_id, note, created_by, created_at
        )
        VALUES (
            :id, :variant_id, :batch_id, :reason, :quantity_change, :quantity_before, :quantity_after,
            :reference_type, :reference_id, :note, :created_by, :created_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, txn.Executor(ctx, r.DB), query, a)
	return apperr.FromDB("create adjustment", err)
}

func (r *PGRepository) List(ctx context.Context, f *dto.AdjustmentFilters) ([]model.StockAdjustment, int, error) {
	var items []model.StockAdjustment
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.VariantID != "" {
		conditions = append(conditions, "variant_id = :variant_id")
		args["variant_id"] = f.VariantID
	}
	if f.BatchID != "" {
		conditions = append(conditions, "batch_id = :batch_id")
		args["batch_id"] = f.BatchID
	}
	if f.Reason != "" {
		conditions = append(conditions, "reason = :reason")
		args["reason"] = f.Reason
	}
	if f.ReferenceType != "" {
		conditions = append(conditions, "reference_type = :reference_type")
		args["reference_type"] = f.ReferenceType
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = :reference_id")
		args["reference_id"] = f.ReferenceID
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	// Inside a transaction the history includes rows it has not committed yet
	prepare := r.DB.PrepareNamedContext
	if tx, ok := txn.TxFrom(ctx); ok {
		prepare = tx.PrepareNamedContext
	}

	// Count
	countQuery := "SELECT count(*) FROM stock_adjustments" + whereClause
	nstmt, err := prepare(ctx, countQuery)
	if err != nil {
		return nil, 0, apperr.FromDB("count adjustments", err)
	}
	defer nstmt.Close()
	if err := nstmt.GetContext(ctx, &count, args); err != nil {
		return nil, 0, apperr.FromDB("count adjustments", err)
	}

	// List
	query := "SELECT * FROM stock_adjustments" + whereClause + " ORDER BY created_at DESC, id DESC"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	nstmtList, err := prepare(ctx, query)
	if err != nil {
		return nil, 0, apperr.FromDB("list adjustments", err)
	}
	defer nstmtList.Close()
	if err := nstmtList.SelectContext(ctx, &items, args); err != nil {
		return nil, 0, apperr.FromDB("list adjustments", err)
	}

	return items, count, nil
}
