package dto

import "github.com/fekuna/omnipos-inventory-service/internal/model"

type RecordInput struct {
	VariantID string
	// BatchID may be empty only for a positive Return, which is credited
	// into batch headroom in FEFO order.
	BatchID       string
	Reason        model.AdjustmentReason
	Quantity      int // Signed change
	ReferenceType string
	ReferenceID   string
	Note          string
}
