package dto

import "github.com/fekuna/omnipos-inventory-service/internal/model"

type AdjustmentFilters struct {
	VariantID string
	BatchID   string
	Reason    model.AdjustmentReason

	ReferenceType string
	ReferenceID   string

	Page     int
	PageSize int
}
