package fulfillment

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/fulfillment/dto"
)

type UseCase interface {
	GetPickList(ctx context.Context, orderID string) (*dto.PickList, error)
	// FulfillOrder commits every Reserved hold of the order when the scan
	// matches all of them, and commits nothing otherwise.
	FulfillOrder(ctx context.Context, input *dto.FulfillInput) (*dto.FulfillResult, error)
	// SwapDamagedStock writes off a damaged hold's units and re-reserves the
	// same quantity from other batches.
	SwapDamagedStock(ctx context.Context, input *dto.SwapInput) (*dto.SwapResult, error)
}

// ShippingCreator requests a shipment and returns its tracking reference.
type ShippingCreator interface {
	CreateShippingOrder(ctx context.Context, input *dto.ShipmentInput) (string, error)
}
