package dto

import "time"

type StockFilters struct {
	LowStock bool // If true, filter by total_quantity <= low_stock_threshold
	Page     int
	PageSize int
}

type LowStockAlert struct {
	EventID           string    `json:"event_id"`
	EventType         string    `json:"event_type"`
	VariantID         string    `json:"variant_id"`
	TotalQuantity     int       `json:"total_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Timestamp         time.Time `json:"timestamp"`
}
