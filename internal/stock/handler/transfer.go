package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// TransferHandler handles inter-warehouse transfer endpoints
type TransferHandler struct {
	service *service.TransferService
	logger  *logger.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(svc *service.TransferService, log *logger.Logger) *TransferHandler {
	return &TransferHandler{
		service: svc,
		logger:  log,
	}
}

// Create creates a transfer and moves the stock immediately
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTransferRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	transfer, err := h.service.CreateTransfer(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, transfer)
}

// Get gets a transfer by ID
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.service.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, transfer)
}

// List lists transfers
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transfers, err := h.service.ListTransfers(r.Context(),
		r.URL.Query().Get("status"),
		r.URL.Query().Get("warehouse_id"),
		limit, offset)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, transfers)
}

// Update replaces the lines of an InTransit transfer
func (h *TransferHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateTransferRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	transfer, err := h.service.UpdateTransfer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, transfer)
}

// Confirm moves InTransit -> Transferred
func (h *TransferHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.service.ConfirmTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, transfer)
}

// Cancel moves InTransit -> Cancel and reverts the moved stock
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.service.CancelTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, transfer)
}
