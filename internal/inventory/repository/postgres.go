package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
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

func (r *PGRepository) Get(ctx context.Context, variantID string) (*model.VariantInventory, error) {
	if tx, ok := txn.TxFrom(ctx); ok {
		return r.load(ctx, tx, variantID, false)
	}

	// Both reads see one snapshot, so the total always matches the batch rows.
	tx, err := r.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, apperr.FromDB("begin stock read", err)
	}
	defer tx.Rollback()

	return r.load(ctx, tx, variantID, false)
}

func (r *PGRepository) GetForUpdate(ctx context.Context, variantID string) (*model.VariantInventory, error) {
	tx, ok := txn.TxFrom(ctx)
	if !ok {
		return nil, apperr.New(apperr.InternalError, "GetForUpdate called outside a transaction")
	}
	return r.load(ctx, tx, variantID, true)
}

func (r *PGRepository) load(ctx context.Context, q sqlx.QueryerContext, variantID string, lock bool) (*model.VariantInventory, error) {
	query := `SELECT * FROM stocks WHERE variant_id = $1`
	if lock {
		// The stock row is the per-variant serialization point.
		query += ` FOR UPDATE`
	}

	var stock model.Stock
	if err := sqlx.GetContext(ctx, q, &stock, query, variantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.FromDB("load stock", err)
	}

	var batches []model.Batch
	err := sqlx.SelectContext(ctx, q, &batches, `
        SELECT * FROM batches
        WHERE variant_id = $1
        ORDER BY expiry_date ASC, created_at ASC, id ASC
    `, variantID)
	if err != nil {
		return nil, apperr.FromDB("load batches", err)
	}

	return model.NewVariantInventory(stock, batches), nil
}

func (r *PGRepository) CreateStock(ctx context.Context, s *model.Stock) error {
	query := `
        INSERT INTO stocks (
            id, variant_id, total_quantity, low_stock_threshold, version, created_at, updated_at
        )
        VALUES (
            :id, :variant_id, :total_quantity, :low_stock_threshold, :version, :created_at, :updated_at
        )
        ON CONFLICT (variant_id) DO NOTHING
    `
	// A concurrent first receipt may have created the row; the caller re-reads it.
	_, err := sqlx.NamedExecContext(ctx, txn.Executor(ctx, r.DB), query, s)
	return apperr.FromDB("create stock", err)
}

func (r *PGRepository) Save(ctx context.Context, inv *model.VariantInventory) error {
	tx, ok := txn.TxFrom(ctx)
	if !ok {
		return apperr.New(apperr.InternalError, "Save called outside a transaction")
	}

	// 1. Update Stock with optimistic version check
	res, err := tx.NamedExecContext(ctx, `
        UPDATE stocks
        SET total_quantity = :total_quantity,
            version = version + 1,
            updated_at = :updated_at
        WHERE id = :id AND version = :version
    `, inv.Stock)
	if err != nil {
		return apperr.FromDB("update stock", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.FromDB("update stock", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.ConcurrencyConflict, "stock for variant %s changed concurrently", inv.VariantID())
	}

	// 2. Insert received batches
	for _, b := range inv.NewBatches() {
		_, err := tx.NamedExecContext(ctx, `
            INSERT INTO batches (
                id, variant_id, batch_code, manufacture_date, expiry_date,
                import_quantity, remaining_quantity, storage_location, created_at, updated_at
            )
            VALUES (
                :id, :variant_id, :batch_code, :manufacture_date, :expiry_date,
                :import_quantity, :remaining_quantity, :storage_location, :created_at, :updated_at
            )
        `, b)
		if err != nil {
			return apperr.FromDB(fmt.Sprintf("insert batch %s", b.BatchCode), err)
		}
	}

	// 3. Update touched batches
	for _, b := range inv.ChangedBatches() {
		_, err := tx.NamedExecContext(ctx, `
            UPDATE batches
            SET remaining_quantity = :remaining_quantity, updated_at = :updated_at
            WHERE id = :id
        `, b)
		if err != nil {
			return apperr.FromDB(fmt.Sprintf("update batch %s", b.BatchCode), err)
		}
	}

	inv.Stock.Version++
	inv.MarkClean()
	return nil
}

func (r *PGRepository) GetStock(ctx context.Context, variantID string) (*model.Stock, error) {
	var s model.Stock
	err := sqlx.GetContext(ctx, txn.Executor(ctx, r.DB), &s, `SELECT * FROM stocks WHERE variant_id = $1`, variantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.FromDB("get stock", err)
	}
	return &s, nil
}

func (r *PGRepository) UpdateThreshold(ctx context.Context, variantID string, threshold int) error {
	res, err := txn.Executor(ctx, r.DB).ExecContext(ctx, `
        UPDATE stocks SET low_stock_threshold = $1, version = version + 1, updated_at = NOW()
        WHERE variant_id = $2
    `, threshold, variantID)
	if err != nil {
		return apperr.FromDB("update threshold", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.FromDB("update threshold", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.NotFound, "no stock for variant %s", variantID)
	}
	return nil
}

func (r *PGRepository) FindStocks(ctx context.Context, f *dto.StockFilters) ([]model.Stock, int, error) {
	var items []model.Stock
	var count int

	conditions := []string{}
	if f.LowStock {
		conditions = append(conditions, "total_quantity <= low_stock_threshold")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	q := txn.Executor(ctx, r.DB)
	if err := sqlx.GetContext(ctx, q, &count, "SELECT count(*) FROM stocks"+whereClause); err != nil {
		return nil, 0, apperr.FromDB("count stocks", err)
	}

	query := "SELECT * FROM stocks" + whereClause + " ORDER BY total_quantity ASC, variant_id ASC"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	if err := sqlx.SelectContext(ctx, q, &items, query); err != nil {
		return nil, 0, apperr.FromDB("list stocks", err)
	}
	return items, count, nil
}

func (r *PGRepository) GetBatchesByIDs(ctx context.Context, ids []string) ([]model.Batch, error) {
	if len(ids) == 0 {
		return []model.Batch{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM batches WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	var items []model.Batch
	if err := sqlx.SelectContext(ctx, txn.Executor(ctx, r.DB), &items, query, args...); err != nil {
		return nil, apperr.FromDB("get batches", err)
	}
	return items, nil
}
