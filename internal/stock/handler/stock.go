package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// StockHandler handles goods receipt and stock reporting endpoints
type StockHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

// Receive books received goods into a warehouse as a new lot
func (h *StockHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req service.ReceiveStockRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	batch, err := h.service.ReceiveStock(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, batch)
}

// WarehouseStock lists a warehouse's current stock
func (h *StockHandler) WarehouseStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GetWarehouseStock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

// ProductStock lists the warehouses where a product is stocked
func (h *StockHandler) ProductStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.GetProductStock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

// ExpiringBatches lists lots in a warehouse expiring within the window
func (h *StockHandler) ExpiringBatches(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("within_days"))

	batches, err := h.service.GetExpiringBatches(r.Context(), chi.URLParam(r, "id"), days)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batches)
}
