package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/pkg/httputil"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ProductHandler handles product catalog endpoints
type ProductHandler struct {
	repo   *repository.ProductRepository
	logger *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(repo *repository.ProductRepository, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		repo:   repo,
		logger: log,
	}
}

type productRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	SKU  string `json:"sku" validate:"required,max=100"`
	Unit string `json:"unit" validate:"required,max=50"`
}

// List lists products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") == ""

	products, err := h.repo.List(r.Context(), activeOnly)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, products)
}

// Get gets a product by ID
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, product)
}

// Create creates a product
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var product repository.Product
	if err := httputil.DecodeJSONLocalized(r, &product); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(productRequest{
		Name: product.Name, SKU: product.SKU, Unit: product.Unit,
	}); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	product.IsActive = true
	if err := h.repo.Create(r.Context(), &product); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, product)
}

// Update updates a product
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var product repository.Product
	if err := httputil.DecodeJSONLocalized(r, &product); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(productRequest{
		Name: product.Name, SKU: product.SKU, Unit: product.Unit,
	}); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	product.ID = chi.URLParam(r, "id")
	if err := h.repo.Update(r.Context(), &product); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, product)
}

// Delete deactivates a product
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}
