package handler_test

import (
	"database/sql"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/stockflow/stockflow-backend/internal/catalog/handler"
	"github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/i18n"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

func newProductRouter(t *testing.T) (http.Handler, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	repo := repository.NewProductRepository(&database.DB{DB: mockDB.DB})
	h := handler.NewProductHandler(repo, logger.New("test", "test"))

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Get("/products/{id}", h.Get)
	r.Post("/products", h.Create)
	return r, mockDB
}

func TestProductHandler_Get_MissingProductIsLocalized404(t *testing.T) {
	router, mockDB := newProductRouter(t)

	mockDB.ExpectQuery("SELECT * FROM products WHERE id = $1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	req := testutil.NewHTTPRequest(http.MethodGet, "/products/missing", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	testutil.AssertBodyContains(t, rr, "NOT_FOUND")
	testutil.AssertBodyContains(t, rr, "Không tìm thấy")
	mockDB.ExpectationsWereMet(t)
}

func TestProductHandler_Get_AcceptLanguageSwitchesMessage(t *testing.T) {
	router, mockDB := newProductRouter(t)

	mockDB.ExpectQuery("SELECT * FROM products WHERE id = $1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	req := testutil.NewHTTPRequest(http.MethodGet, "/products/missing", nil)
	req.Header.Set("Accept-Language", "en-US")
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	testutil.AssertBodyContains(t, rr, "not found")
	mockDB.ExpectationsWereMet(t)
}

func TestProductHandler_Create_ReturnsCreatedProduct(t *testing.T) {
	router, mockDB := newProductRouter(t)

	mockDB.ExpectQuery("INSERT INTO products").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").
			AddRow(testutil.FixedTime(), testutil.FixedTime()))

	req := testutil.NewHTTPRequest(http.MethodPost, "/products", map[string]string{
		"name": "Gạch men 60x60",
		"sku":  "GM-6060",
		"unit": "viên",
	})
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp struct {
		Success bool               `json:"success"`
		Data    repository.Product `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &resp)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data.ID)
	assert.Equal(t, "GM-6060", resp.Data.SKU)
	assert.True(t, resp.Data.IsActive)
	mockDB.ExpectationsWereMet(t)
}

func TestProductHandler_Create_MissingFieldsRejected(t *testing.T) {
	router, mockDB := newProductRouter(t)

	req := testutil.NewHTTPRequest(http.MethodPost, "/products", map[string]string{
		"name": "Gạch men 60x60",
	})
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
	testutil.AssertBodyContains(t, rr, "SKU")
	mockDB.ExpectationsWereMet(t)
}
