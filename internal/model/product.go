package model

import "github.com/shopspring/decimal"

// VariantInfo is the catalog projection of a sellable SKU used for pick lists
// and order-detail snapshots.
type VariantInfo struct {
	VariantID         string          `db:"variant_id" json:"variant_id"`
	ProductID         string          `db:"product_id" json:"product_id"`
	Sku               string          `db:"sku" json:"sku"`
	ProductName       string          `db:"product_name" json:"product_name"`
	VolumeMl          int             `db:"volume_ml" json:"volume_ml"`
	ConcentrationName string          `db:"concentration_name" json:"concentration_name"` // EDP, EDT, Parfum...
	Type              string          `db:"type" json:"type"`
	BasePrice         decimal.Decimal `db:"base_price" json:"base_price"`
	IsActive          bool            `db:"is_active" json:"is_active"`
}
