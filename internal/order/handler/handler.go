package handler

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/order"
	"github.com/fekuna/omnipos-inventory-service/internal/order/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/reservation"
	"github.com/fekuna/omnipos-inventory-service/pkg/grpcjson"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"google.golang.org/grpc"
)

const ServiceName = "omnipos.inventory.v1.OrderInventoryService"

type OrderHandler struct {
	uc           order.UseCase
	reservations reservation.UseCase
	logger       logger.ZapLogger
}

func NewOrderHandler(uc order.UseCase, reservations reservation.UseCase, log logger.ZapLogger) *OrderHandler {
	return &OrderHandler{
		uc:           uc,
		reservations: reservations,
		logger:       log,
	}
}

func (h *OrderHandler) Register(s *grpc.Server) {
	s.RegisterService(grpcjson.Service(ServiceName,
		grpcjson.Method(ServiceName, "ValidateStockAvailability", h.ValidateStockAvailability),
		grpcjson.Method(ServiceName, "ReserveOrder", h.ReserveOrder),
		grpcjson.Method(ServiceName, "CancelOrder", h.CancelOrder),
		grpcjson.Method(ServiceName, "RestoreInventory", h.RestoreInventory),
		grpcjson.Method(ServiceName, "ReleaseReservation", h.ReleaseReservation),
		grpcjson.Method(ServiceName, "ListReservations", h.ListReservations),
	), h)
}

type ItemsRequest struct {
	OrderID string          `json:"order_id"`
	Items   []dto.OrderItem `json:"items"`
}

// ValidateStockAvailability reports business failures in the body; only
// unexpected errors become a status.
func (h *OrderHandler) ValidateStockAvailability(ctx context.Context, req *ItemsRequest) (*apperr.Result, error) {
	err := h.uc.ValidateStockAvailability(ctx, req.Items)
	if apperr.Is(err, apperr.InternalError) {
		return nil, err
	}
	res := apperr.ToResult(err)
	return &res, nil
}

type ReserveOrderRequest struct {
	OrderID     string          `json:"order_id"`
	Lines       []dto.OrderLine `json:"lines"`
	HoldMinutes int             `json:"hold_minutes"`
}

type ReservationsResponse struct {
	Reservations []model.StockReservation `json:"reservations"`
}

func (h *OrderHandler) ReserveOrder(ctx context.Context, req *ReserveOrderRequest) (*ReservationsResponse, error) {
	rows, err := h.uc.ReserveOrder(ctx, &dto.ReserveOrderInput{
		OrderID: req.OrderID,
		Lines:   req.Lines,
		TTL:     time.Duration(req.HoldMinutes) * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return &ReservationsResponse{Reservations: rows}, nil
}

type OrderRequest struct {
	OrderID string `json:"order_id"`
}

func (h *OrderHandler) CancelOrder(ctx context.Context, req *OrderRequest) (*dto.CancelResult, error) {
	return h.uc.CancelOrder(ctx, req.OrderID)
}

func (h *OrderHandler) RestoreInventory(ctx context.Context, req *ItemsRequest) (*apperr.Result, error) {
	if err := h.uc.RestoreInventory(ctx, req.OrderID, req.Items); err != nil {
		return nil, err
	}
	return &apperr.Result{Success: true}, nil
}

type ReleaseRequest struct {
	ReservationID string `json:"reservation_id"`
}

type ReleaseResponse struct {
	Changed bool `json:"changed"`
}

func (h *OrderHandler) ReleaseReservation(ctx context.Context, req *ReleaseRequest) (*ReleaseResponse, error) {
	changed, err := h.reservations.Release(ctx, req.ReservationID, model.ReleaseManual)
	if err != nil {
		return nil, err
	}
	return &ReleaseResponse{Changed: changed}, nil
}

func (h *OrderHandler) ListReservations(ctx context.Context, req *OrderRequest) (*ReservationsResponse, error) {
	rows, err := h.reservations.ListByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return &ReservationsResponse{Reservations: rows}, nil
}
