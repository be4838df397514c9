package model

import "time"

type AdjustmentReason string

const (
	AdjustmentDamage     AdjustmentReason = "damage"
	AdjustmentExpired    AdjustmentReason = "expired"
	AdjustmentTheft      AdjustmentReason = "theft"
	AdjustmentLoss       AdjustmentReason = "loss"
	AdjustmentFound      AdjustmentReason = "found"
	AdjustmentCorrection AdjustmentReason = "correction"
	AdjustmentReturn     AdjustmentReason = "return"
	AdjustmentOther      AdjustmentReason = "other"
)

func (r AdjustmentReason) Valid() bool {
	switch r {
	case AdjustmentDamage, AdjustmentExpired, AdjustmentTheft, AdjustmentLoss,
		AdjustmentFound, AdjustmentCorrection, AdjustmentReturn, AdjustmentOther:
		return true
	}
	return false
}

// Sign is -1 for reasons that only remove stock, +1 for those that only add
// it, 0 when either direction is allowed.
func (r AdjustmentReason) Sign() int {
	switch r {
	case AdjustmentDamage, AdjustmentExpired, AdjustmentTheft, AdjustmentLoss:
		return -1
	case AdjustmentFound, AdjustmentReturn:
		return 1
	}
	return 0
}

// StockAdjustment is an append-only ledger entry for a manual or damage correction.
type StockAdjustment struct {
	ID             string           `db:"id" json:"id"`
	VariantID      string           `db:"variant_id" json:"variant_id"`
	BatchID        string           `db:"batch_id" json:"batch_id"`
	Reason         AdjustmentReason `db:"reason" json:"reason"`
	QuantityChange int              `db:"quantity_change" json:"quantity_change"`
	QuantityBefore int              `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int              `db:"quantity_after" json:"quantity_after"`
	ReferenceType  *string          `db:"reference_type" json:"reference_type"`
	ReferenceID    *string          `db:"reference_id" json:"reference_id"`
	Note           string           `db:"note" json:"note"`
	CreatedBy      *string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}
