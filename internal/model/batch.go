package model

import (
	"sort"
	"time"
)

// Batch is a received lot of one variant.
type Batch struct {
	ID                string    `db:"id" json:"id"`
	VariantID         string    `db:"variant_id" json:"variant_id"`
	BatchCode         string    `db:"batch_code" json:"batch_code"`
	ManufactureDate   time.Time `db:"manufacture_date" json:"manufacture_date"`
	ExpiryDate        time.Time `db:"expiry_date" json:"expiry_date"`
	ImportQuantity    int       `db:"import_quantity" json:"import_quantity"`
	RemainingQuantity int       `db:"remaining_quantity" json:"remaining_quantity"`
	StorageLocation   *string   `db:"storage_location" json:"storage_location"` // Nullable, shelf/bin code
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// IsExpired is true once the expiry instant has been reached.
func (b Batch) IsExpired(now time.Time) bool {
	return !b.ExpiryDate.After(now)
}

// Headroom is how much can be credited back without exceeding the import quantity.
func (b Batch) Headroom() int {
	return b.ImportQuantity - b.RemainingQuantity
}

func (b Batch) Location() string {
	if b.StorageLocation == nil {
		return ""
	}
	return *b.StorageLocation
}

// SortFEFO orders batches earliest expiry first, ties broken by CreatedAt, then ID
// so the order is total.
func SortFEFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// BatchAllocation is the share of a quantity taken from (or credited to) one batch.
type BatchAllocation struct {
	BatchID    string    `json:"batch_id"`
	BatchCode  string    `json:"batch_code"`
	Quantity   int       `json:"quantity"`
	ExpiryDate time.Time `json:"expiry_date"`
}
