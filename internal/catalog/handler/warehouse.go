package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// WarehouseHandler handles warehouse directory endpoints
type WarehouseHandler struct {
	repo   *repository.WarehouseRepository
	logger *logger.Logger
}

// NewWarehouseHandler creates a new warehouse handler
func NewWarehouseHandler(repo *repository.WarehouseRepository, log *logger.Logger) *WarehouseHandler {
	return &WarehouseHandler{
		repo:   repo,
		logger: log,
	}
}

type warehouseRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// List lists warehouses
func (h *WarehouseHandler) List(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.repo.ListAll(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, warehouses)
}

// Get gets a warehouse by ID
func (h *WarehouseHandler) Get(w http.ResponseWriter, r *http.Request) {
	warehouse, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, warehouse)
}

// Create creates a warehouse
func (h *WarehouseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var warehouse repository.Warehouse
	if err := httputil.DecodeJSONLocalized(r, &warehouse); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(warehouseRequest{Name: warehouse.Name}); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	warehouse.IsActive = true
	if err := h.repo.Create(r.Context(), &warehouse); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, warehouse)
}

// Update updates a warehouse
func (h *WarehouseHandler) Update(w http.ResponseWriter, r *http.Request) {
	var warehouse repository.Warehouse
	if err := httputil.DecodeJSONLocalized(r, &warehouse); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(warehouseRequest{Name: warehouse.Name}); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	warehouse.ID = chi.URLParam(r, "id")
	if err := h.repo.Update(r.Context(), &warehouse); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, warehouse)
}

// Delete deactivates a warehouse
func (h *WarehouseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}
