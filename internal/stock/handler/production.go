package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ProductionHandler handles production-order endpoints
type ProductionHandler struct {
	service *service.ProductionService
	logger  *logger.Logger
}

// NewProductionHandler creates a new production handler
func NewProductionHandler(svc *service.ProductionService, log *logger.Logger) *ProductionHandler {
	return &ProductionHandler{
		service: svc,
		logger:  log,
	}
}

// Create creates a production order in Pending
func (h *ProductionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProductionRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	order, err := h.service.CreateProduction(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, order)
}

// Get gets a production order by ID
func (h *ProductionHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetProduction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// List lists production orders
func (h *ProductionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := h.service.ListProductions(r.Context(),
		r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, orders)
}

// Start moves Pending -> Processing, binding a device and consuming the
// raw material
func (h *ProductionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartProcessingRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	order, err := h.service.StartProcessing(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// MoveToWaitingApproval moves Processing -> WaitingApproval and frees the
// device
func (h *ProductionHandler) MoveToWaitingApproval(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.MoveToWaitingApproval(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// Finish moves WaitingApproval -> Finished, booking the finished goods
// into stock
func (h *ProductionHandler) Finish(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.FinishProduction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}

// Cancel moves Pending -> Cancel
func (h *ProductionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.CancelProduction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, order)
}
