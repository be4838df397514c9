package repository

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/pkg/txn"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	tx, ok := txn.TxFrom(ctx)
	if !ok {
		return false, apperr.New(apperr.InternalError, "MarkProcessed called outside a transaction")
	}

	res, err := tx.ExecContext(ctx, `
        INSERT INTO processed_order_events (event_id, event_type, processed_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (event_id) DO NOTHING
    `, eventID, eventType)
	if err != nil {
		return false, apperr.FromDB("mark order event", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperr.FromDB("mark order event", err)
	}
	return rows == 1, nil
}
