package handler

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/adjustment"
	adjustmentdto "github.com/fekuna/omnipos-inventory-service/internal/adjustment/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/pkg/grpcjson"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const ServiceName = "omnipos.inventory.v1.InventoryService"

type InventoryHandler struct {
	uc          inventory.UseCase
	adjustments adjustment.UseCase
	logger      logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, adjustments adjustment.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:          uc,
		adjustments: adjustments,
		logger:      log,
	}
}

func (h *InventoryHandler) Register(s *grpc.Server) {
	s.RegisterService(grpcjson.Service(ServiceName,
		grpcjson.Method(ServiceName, "GetStock", h.GetStock),
		grpcjson.Method(ServiceName, "ListLowStock", h.ListLowStock),
		grpcjson.Method(ServiceName, "SetLowStockThreshold", h.SetLowStockThreshold),
		grpcjson.Method(ServiceName, "GetAvailableBatches", h.GetAvailableBatches),
		grpcjson.Method(ServiceName, "ReceiveBatch", h.ReceiveBatch),
		grpcjson.Method(ServiceName, "AdjustInventory", h.AdjustInventory),
		grpcjson.Method(ServiceName, "ListAdjustments", h.ListAdjustments),
	), h)
}

type VariantRequest struct {
	VariantID string `json:"variant_id"`
}

type StockResponse struct {
	Stock    *model.Stock `json:"stock"`
	LowStock bool         `json:"low_stock"`
}

func (h *InventoryHandler) GetStock(ctx context.Context, req *VariantRequest) (*StockResponse, error) {
	stock, err := h.uc.GetStock(ctx, req.VariantID)
	if err != nil {
		return nil, err
	}
	return &StockResponse{Stock: stock, LowStock: stock.IsLowStock()}, nil
}

type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type ListLowStockResponse struct {
	Items []model.Stock `json:"items"`
	Total int           `json:"total"`
}

func (h *InventoryHandler) ListLowStock(ctx context.Context, req *PageRequest) (*ListLowStockResponse, error) {
	items, count, err := h.uc.ListLowStock(ctx, req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	return &ListLowStockResponse{Items: items, Total: count}, nil
}

type SetThresholdRequest struct {
	VariantID string `json:"variant_id"`
	Threshold int    `json:"threshold"`
}

type Empty struct{}

func (h *InventoryHandler) SetLowStockThreshold(ctx context.Context, req *SetThresholdRequest) (*Empty, error) {
	if err := h.uc.SetLowStockThreshold(ctx, req.VariantID, req.Threshold); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

type BatchesResponse struct {
	Batches []model.Batch `json:"batches"`
}

func (h *InventoryHandler) GetAvailableBatches(ctx context.Context, req *VariantRequest) (*BatchesResponse, error) {
	batches, err := h.uc.GetAvailableBatches(ctx, req.VariantID)
	if err != nil {
		return nil, err
	}
	return &BatchesResponse{Batches: batches}, nil
}

type ReceiveBatchRequest struct {
	VariantID         string    `json:"variant_id"`
	BatchCode         string    `json:"batch_code"`
	ManufactureDate   time.Time `json:"manufacture_date"`
	ExpiryDate        time.Time `json:"expiry_date"`
	ImportQuantity    int       `json:"import_quantity"`
	StorageLocation   string    `json:"storage_location"`
	LowStockThreshold int       `json:"low_stock_threshold"`
}

func (h *InventoryHandler) ReceiveBatch(ctx context.Context, req *ReceiveBatchRequest) (*model.Batch, error) {
	return h.uc.ReceiveBatch(ctx, &dto.ReceiveBatchInput{
		VariantID:         req.VariantID,
		BatchCode:         req.BatchCode,
		ManufactureDate:   req.ManufactureDate,
		ExpiryDate:        req.ExpiryDate,
		ImportQuantity:    req.ImportQuantity,
		StorageLocation:   req.StorageLocation,
		LowStockThreshold: req.LowStockThreshold,
	})
}

type AdjustInventoryRequest struct {
	VariantID      string                 `json:"variant_id"`
	BatchID        string                 `json:"batch_id"`
	Reason         model.AdjustmentReason `json:"reason"`
	QuantityChange int                    `json:"quantity_change"`
	ReferenceType  string                 `json:"reference_type"`
	ReferenceID    string                 `json:"reference_id"`
	Note           string                 `json:"note"`
}

type AdjustmentsResponse struct {
	Adjustments []model.StockAdjustment `json:"adjustments"`
	Total       int                     `json:"total"`
}

func (h *InventoryHandler) AdjustInventory(ctx context.Context, req *AdjustInventoryRequest) (*AdjustmentsResponse, error) {
	refType := req.ReferenceType
	if refType == "" {
		refType = "manual"
	}

	rows, err := h.adjustments.Record(ctx, &adjustmentdto.RecordInput{
		VariantID:     req.VariantID,
		BatchID:       req.BatchID,
		Reason:        req.Reason,
		Quantity:      req.QuantityChange,
		ReferenceType: refType,
		ReferenceID:   req.ReferenceID,
		Note:          req.Note,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("Inventory adjusted",
		zap.String("variant_id", req.VariantID),
		zap.String("reason", string(req.Reason)),
		zap.Int("quantity_change", req.QuantityChange),
	)
	return &AdjustmentsResponse{Adjustments: rows, Total: len(rows)}, nil
}

type ListAdjustmentsRequest struct {
	VariantID     string                 `json:"variant_id"`
	BatchID       string                 `json:"batch_id"`
	Reason        model.AdjustmentReason `json:"reason"`
	ReferenceType string                 `json:"reference_type"`
	ReferenceID   string                 `json:"reference_id"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
}

func (h *InventoryHandler) ListAdjustments(ctx context.Context, req *ListAdjustmentsRequest) (*AdjustmentsResponse, error) {
	filters := &adjustmentdto.AdjustmentFilters{
		VariantID:     req.VariantID,
		BatchID:       req.BatchID,
		Reason:        req.Reason,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}

	rows, count, err := h.adjustments.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	return &AdjustmentsResponse{Adjustments: rows, Total: count}, nil
}
