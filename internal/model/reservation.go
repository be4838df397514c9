package model

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
)

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

type ReleaseReason string

const (
	ReleaseExpired   ReleaseReason = "expired"
	ReleaseCancelled ReleaseReason = "cancelled"
	ReleaseDamaged   ReleaseReason = "damaged"
	ReleaseManual    ReleaseReason = "manual"
)

// StockReservation is a time-bounded hold on part of one batch for one order line.
type StockReservation struct {
	ID               string            `db:"id" json:"id"`
	OrderID          string            `db:"order_id" json:"order_id"`
	OrderDetailID    string            `db:"order_detail_id" json:"order_detail_id"`
	VariantID        string            `db:"variant_id" json:"variant_id"`
	BatchID          string            `db:"batch_id" json:"batch_id"`
	ReservedQuantity int               `db:"reserved_quantity" json:"reserved_quantity"`
	Status           ReservationStatus `db:"status" json:"status"`
	ReleaseReason    *ReleaseReason    `db:"release_reason" json:"release_reason"`
	ExpiresAt        time.Time         `db:"expires_at" json:"expires_at"`
	CommittedAt      *time.Time        `db:"committed_at" json:"committed_at"`
	ReleasedAt       *time.Time        `db:"released_at" json:"released_at"`
	CreatedBy        *string           `db:"created_by" json:"created_by"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

func (r StockReservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationReserved && r.ExpiresAt.Before(now)
}

func (r *StockReservation) Commit(now time.Time) error {
	if r.Status != ReservationReserved {
		return apperr.Newf(apperr.InvalidState, "reservation %s is %s, only reserved holds can be committed", r.ID, r.Status)
	}
	r.Status = ReservationCommitted
	r.CommittedAt = &now
	r.UpdatedAt = now
	return nil
}

// Release moves a reserved hold to released. Releasing an already released
// hold is a no-op and reports false.
func (r *StockReservation) Release(now time.Time, reason ReleaseReason) (bool, error) {
	switch r.Status {
	case ReservationReleased:
		return false, nil
	case ReservationCommitted:
		return false, apperr.Newf(apperr.InvalidState, "reservation %s is already committed", r.ID)
	}
	r.Status = ReservationReleased
	r.ReleaseReason = &reason
	r.ReleasedAt = &now
	r.UpdatedAt = now
	return true, nil
}
