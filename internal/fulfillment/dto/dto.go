package dto

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type PickList struct {
	OrderID string     `json:"order_id"`
	Lines   []PickLine `json:"lines"`
}

// PickLine groups the holds of one order detail.
type PickLine struct {
	OrderDetailID string            `json:"order_detail_id"`
	VariantID     string            `json:"variant_id"`
	Variant       model.VariantInfo `json:"variant"`
	Quantity      int               `json:"quantity"`
	Entries       []PickEntry       `json:"entries"`
}

type PickEntry struct {
	ReservationID   string    `json:"reservation_id"`
	BatchID         string    `json:"batch_id"`
	BatchCode       string    `json:"batch_code"`
	StorageLocation string    `json:"storage_location"`
	ExpiryDate      time.Time `json:"expiry_date"`
	Quantity        int       `json:"quantity"`
}

// ScannedItem is what the picker scanned for one order detail.
type ScannedItem struct {
	OrderDetailID string `json:"order_detail_id"`
	BatchCode     string `json:"batch_code"`
	Quantity      int    `json:"quantity"`
}

type Recipient struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type FulfillInput struct {
	OrderID   string
	StaffID   string
	Items     []ScannedItem
	Recipient *Recipient
}

type FulfillResult struct {
	OrderID       string                   `json:"order_id"`
	Committed     []model.StockReservation `json:"committed"`
	TrackingRef   string                   `json:"tracking_ref,omitempty"`
	ShippingError string                   `json:"shipping_error,omitempty"` // Inventory stays committed
}

// ShipmentInput is handed to the shipping collaborator after commit.
type ShipmentInput struct {
	OrderID   string
	StaffID   string
	Recipient *Recipient
	Parcels   []Parcel
}

type Parcel struct {
	OrderDetailID string `json:"order_detail_id"`
	VariantID     string `json:"variant_id"`
	BatchID       string `json:"batch_id"`
	Quantity      int    `json:"quantity"`
}

type SwapInput struct {
	OrderID              string
	StaffID              string
	OrderDetailID        string
	DamagedReservationID string
	Note                 string
}

type SwapResult struct {
	ReleasedReservationID string      `json:"released_reservation_id"`
	Replacements          []PickEntry `json:"replacements"`
}
