package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

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

func (r *PGRepository) Create(ctx context.Context, res *model.StockReservation) error {
	query := `
        INSERT INTO stock_reservations (
            id, order_id, order_detail_id, variant_id, batch_id, reserved_quantity,
            status, release_reason, expires_at, committed_at, released_at,
            created_by, created_at, updated_at
        )
        VALUES (
            :id, :order_id, :order_detail_id, :variant_id, :batch_id, :reserved_quantity,
            :status, :release_reason, :expires_at, :committed_at, :released_at,
            :created_by, :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, txn.Executor(ctx, r.DB), query, res)
	return apperr.FromDB("create reservation", err)
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.StockReservation, error) {
	return r.get(ctx, txn.Executor(ctx, r.DB), `SELECT * FROM stock_reservations WHERE id = $1`, id)
}

func (r *PGRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.StockReservation, error) {
	tx, ok := txn.TxFrom(ctx)
	if !ok {
		return nil, apperr.New(apperr.InternalError, "GetByIDForUpdate called outside a transaction")
	}
	return r.get(ctx, tx, `SELECT * FROM stock_reservations WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) get(ctx context.Context, q sqlx.QueryerContext, query, id string) (*model.StockReservation, error) {
	var res model.StockReservation
	if err := sqlx.GetContext(ctx, q, &res, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.FromDB("get reservation", err)
	}
	return &res, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, res *model.StockReservation, from model.ReservationStatus) error {
	result, err := txn.Executor(ctx, r.DB).ExecContext(ctx, `
        UPDATE stock_reservations
        SET status = $1, release_reason = $2, committed_at = $3, released_at = $4, updated_at = $5
        WHERE id = $6 AND status = $7
    `, res.Status, res.ReleaseReason, res.CommittedAt, res.ReleasedAt, res.UpdatedAt, res.ID, from)
	if err != nil {
		return apperr.FromDB("update reservation", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperr.FromDB("update reservation", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.ConcurrencyConflict, "reservation %s is no longer %s", res.ID, from)
	}
	return nil
}

func (r *PGRepository) SumOutstandingByBatch(ctx context.Context, variantID string) (map[string]int, error) {
	var rows []struct {
		BatchID  string `db:"batch_id"`
		Quantity int    `db:"quantity"`
	}
	err := sqlx.SelectContext(ctx, txn.Executor(ctx, r.DB), &rows, `
        SELECT batch_id, COALESCE(SUM(reserved_quantity), 0) AS quantity
        FROM stock_reservations
        WHERE variant_id = $1 AND status = $2
        GROUP BY batch_id
    `, variantID, model.ReservationReserved)
	if err != nil {
		return nil, apperr.FromDB("sum outstanding reservations", err)
	}

	held := make(map[string]int, len(rows))
	for _, row := range rows {
		held[row.BatchID] = row.Quantity
	}
	return held, nil
}

func (r *PGRepository) ListByOrder(ctx context.Context, orderID string) ([]model.StockReservation, error) {
	var items []model.StockReservation
	err := sqlx.SelectContext(ctx, txn.Executor(ctx, r.DB), &items, `
        SELECT * FROM stock_reservations
        WHERE order_id = $1
        ORDER BY order_detail_id ASC, created_at ASC, id ASC
    `, orderID)
	if err != nil {
		return nil, apperr.FromDB("list order reservations", err)
	}
	return items, nil
}

func (r *PGRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.StockReservation, error) {
	query := `
        SELECT * FROM stock_reservations
        WHERE status = $1 AND expires_at < $2
        ORDER BY expires_at ASC, id ASC
    `
	args := []interface{}{model.ReservationReserved, now}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	var items []model.StockReservation
	if err := sqlx.SelectContext(ctx, txn.Executor(ctx, r.DB), &items, query, args...); err != nil {
		return nil, apperr.FromDB("list expired reservations", err)
	}
	return items, nil
}
