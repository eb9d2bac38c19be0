package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/catalog/repository"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

func newMockRepo(t *testing.T) (*repository.ProductRepository, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })
	return repository.NewProductRepository(&database.DB{DB: mockDB.DB}), mockDB
}

func TestProductRepository_Create_ScansTimestamps(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	p := &repository.Product{
		Name:      "Gạch men 60x60",
		SKU:       "GM-6060",
		Unit:      "viên",
		UnitPrice: decimal.NewFromInt(120),
		IsActive:  true,
	}

	mockDB.ExpectQuery("INSERT INTO products").
		WillReturnRows(testutil.MockRows("created_at", "updated_at").
			AddRow(testutil.FixedTime(), testutil.FixedTime()))

	require.NoError(t, repo.Create(context.Background(), p))
	assert.NotEmpty(t, p.ID, "create must assign an id when none is given")
	assert.False(t, p.CreatedAt.IsZero())
	mockDB.ExpectationsWereMet(t)
}

func TestProductRepository_Get_MapsNoRowsToNotFound(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	mockDB.ExpectQuery("SELECT * FROM products WHERE id = $1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	mockDB.ExpectationsWereMet(t)
}

func TestProductRepository_Deactivate_ZeroRowsIsNotFound(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	mockDB.ExpectExec("UPDATE products SET is_active = FALSE").
		WithArgs("missing").
		WillReturnResult(testutil.MockResult(0, 0))

	err := repo.Deactivate(context.Background(), "missing")
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	mockDB.ExpectationsWereMet(t)
}

func TestProductRepository_GetByIDs_SkipsUnknownIDs(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	cols := []string{"id", "name", "sku", "unit", "unit_price", "weight_per_unit", "is_active", "created_at", "updated_at"}
	mockDB.ExpectQuery("SELECT * FROM products WHERE id IN ($1, $2)").
		WithArgs("p-1", "p-2").
		WillReturnRows(testutil.MockRows(cols...).
			AddRow("p-1", "Gạch men", "GM-01", "viên", "120", "1.5", true, testutil.FixedTime(), testutil.FixedTime()))

	out, err := repo.GetByIDs(context.Background(), []string{"p-1", "p-2"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Gạch men", out["p-1"].Name)
	assert.Nil(t, out["p-2"])
	mockDB.ExpectationsWereMet(t)
}

func TestProductRepository_GetByIDs_EmptyInputSkipsQuery(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	out, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	mockDB.ExpectationsWereMet(t)
}
