package dto

import "time"

type ReserveInput struct {
	VariantID     string
	OrderID       string
	OrderDetailID string
	Quantity      int
	TTL           time.Duration // Zero uses the configured default hold window

	// ExcludeBatchIDs are never allocated, e.g. a batch just found damaged.
	ExcludeBatchIDs []string

	// ReuseExisting returns the line's Reserved or Committed holds instead of
	// adding new ones, so a repeated order reservation holds stock once.
	ReuseExisting bool
}
