package handler

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/fulfillment"
	"github.com/fekuna/omnipos-inventory-service/internal/fulfillment/dto"
	"github.com/fekuna/omnipos-inventory-service/pkg/grpcjson"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"google.golang.org/grpc"
)

const ServiceName = "omnipos.inventory.v1.FulfillmentService"

type FulfillmentHandler struct {
	uc     fulfillment.UseCase
	logger logger.ZapLogger
}

func NewFulfillmentHandler(uc fulfillment.UseCase, log logger.ZapLogger) *FulfillmentHandler {
	return &FulfillmentHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *FulfillmentHandler) Register(s *grpc.Server) {
	s.RegisterService(grpcjson.Service(ServiceName,
		grpcjson.Method(ServiceName, "GetPickList", h.GetPickList),
		grpcjson.Method(ServiceName, "FulfillOrder", h.FulfillOrder),
		grpcjson.Method(ServiceName, "SwapDamagedStock", h.SwapDamagedStock),
	), h)
}

type PickListRequest struct {
	OrderID string `json:"order_id"`
}

func (h *FulfillmentHandler) GetPickList(ctx context.Context, req *PickListRequest) (*dto.PickList, error) {
	return h.uc.GetPickList(ctx, req.OrderID)
}

type FulfillOrderRequest struct {
	OrderID   string            `json:"order_id"`
	StaffID   string            `json:"staff_id"`
	Items     []dto.ScannedItem `json:"items"`
	Recipient *dto.Recipient    `json:"recipient"`
}

func (h *FulfillmentHandler) FulfillOrder(ctx context.Context, req *FulfillOrderRequest) (*dto.FulfillResult, error) {
	return h.uc.FulfillOrder(ctx, &dto.FulfillInput{
		OrderID:   req.OrderID,
		StaffID:   req.StaffID,
		Items:     req.Items,
		Recipient: req.Recipient,
	})
}

type SwapDamagedStockRequest struct {
	OrderID              string `json:"order_id"`
	StaffID              string `json:"staff_id"`
	OrderDetailID        string `json:"order_detail_id"`
	DamagedReservationID string `json:"damaged_reservation_id"`
	Note                 string `json:"note"`
}

func (h *FulfillmentHandler) SwapDamagedStock(ctx context.Context, req *SwapDamagedStockRequest) (*dto.SwapResult, error) {
	return h.uc.SwapDamagedStock(ctx, &dto.SwapInput{
		OrderID:              req.OrderID,
		StaffID:              req.StaffID,
		OrderDetailID:        req.OrderDetailID,
		DamagedReservationID: req.DamagedReservationID,
		Note:                 req.Note,
	})
}
