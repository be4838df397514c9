package dto

import "time"

// ReceiveBatchInput comes from a verified import ticket.
type ReceiveBatchInput struct {
	VariantID         string
	BatchCode         string
	ManufactureDate   time.Time
	ExpiryDate        time.Time
	ImportQuantity    int
	StorageLocation   string
	LowStockThreshold int // Only used when the variant has no stock row yet
}
