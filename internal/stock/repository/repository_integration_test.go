package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/internal/stock/repository"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Only the container-backed tests need the suite; the sqlmock tests
	// in this package run regardless.
	if os.Getenv("STOCKFLOW_INTEGRATION") != "" {
		var err error
		suite, err = testutil.NewIntegrationSuite(ctx)
		if err != nil {
			panic("failed to create integration suite: " + err.Error())
		}
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

// integrationEnv skips the test unless the PostgreSQL container is up, then
// resets the schema to a clean slate.
func integrationEnv(t *testing.T, ctx context.Context) {
	t.Helper()
	if suite == nil {
		t.Skip("set STOCKFLOW_INTEGRATION=1 to run against PostgreSQL")
	}
	suite.Reset(t, ctx)
}

func seedRefData(t *testing.T, ctx context.Context) (warehouseID, productID string) {
	t.Helper()

	warehouse := suite.Fixtures.Warehouse()
	product := suite.Fixtures.Product()

	_, err := suite.RawDB.ExecContext(ctx,
		`INSERT INTO warehouses (id, name, address) VALUES ($1, $2, $3)`,
		warehouse.ID, warehouse.Name, warehouse.Address)
	require.NoError(t, err)
	_, err = suite.RawDB.ExecContext(ctx,
		`INSERT INTO products (id, name, sku, unit, unit_price, weight_per_unit) VALUES ($1, $2, $3, $4, $5, $6)`,
		product.ID, product.Name, product.SKU, product.Unit, product.UnitPrice, product.WeightPerUnit)
	require.NoError(t, err)
	return warehouse.ID, product.ID
}

// createBatch persists a batch fixture through the store.
func createBatch(t *testing.T, ctx context.Context, stores domain.Stores, fx testutil.BatchFixture) *domain.StockBatch {
	t.Helper()
	b := &domain.StockBatch{
		ID:          fx.ID,
		WarehouseID: fx.WarehouseID,
		ProductID:   fx.ProductID,
		QuantityIn:  fx.QuantityIn,
		QuantityOut: fx.QuantityOut,
		ImportDate:  fx.ImportDate,
		ExpireDate:  fx.ExpireDate,
	}
	require.NoError(t, stores.Batches.Create(ctx, b))
	return b
}

func TestBatchStore_ListAvailable_FIFOOrder(t *testing.T) {
	ctx := context.Background()
	integrationEnv(t, ctx)
	warehouseID, productID := seedRefData(t, ctx)

	stores := repository.NewStores(suite.RawDB)

	// The fixture factory hands out strictly increasing import dates, so
	// creation order is FIFO order regardless of insert order.
	olderFx := suite.Fixtures.Batch(warehouseID, productID, 10)
	newerFx := suite.Fixtures.Batch(warehouseID, productID, 5)
	newer := createBatch(t, ctx, stores, newerFx)
	older := createBatch(t, ctx, stores, olderFx)

	got, err := stores.Batches.ListAvailable(ctx, warehouseID, productID, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID, "oldest import date must come first")
	assert.Equal(t, newer.ID, got[1].ID)
}

func TestBatchStore_ListAvailable_ExcludesExpiredAndConsumed(t *testing.T) {
	ctx := context.Background()
	integrationEnv(t, ctx)
	warehouseID, productID := seedRefData(t, ctx)

	stores := repository.NewStores(suite.RawDB)
	now := time.Now().UTC()

	createBatch(t, ctx, stores, suite.Fixtures.Batch(warehouseID, productID, 10,
		testutil.WithExpireDate(now.Add(-time.Hour))))
	createBatch(t, ctx, stores, suite.Fixtures.Batch(warehouseID, productID, 4,
		testutil.WithQuantityOut(4)))
	live := createBatch(t, ctx, stores, suite.Fixtures.Batch(warehouseID, productID, 7))

	got, err := stores.Batches.ListAvailable(ctx, warehouseID, productID, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, live.ID, got[0].ID)
}

func TestBatchStore_OverConsumptionHitsCheckConstraint(t *testing.T) {
	ctx := context.Background()
	integrationEnv(t, ctx)
	warehouseID, productID := seedRefData(t, ctx)

	stores := repository.NewStores(suite.RawDB)
	batch := &domain.StockBatch{WarehouseID: warehouseID, ProductID: productID, QuantityIn: 3}
	require.NoError(t, stores.Batches.Create(ctx, batch))

	err := stores.Batches.ApplyConsumption(ctx, batch.ID, 4)
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestInventoryStore_AdjustQuantity_UpsertsAndGuardsNegative(t *testing.T) {
	ctx := context.Background()
	integrationEnv(t, ctx)
	warehouseID, productID := seedRefData(t, ctx)

	stores := repository.NewStores(suite.RawDB)

	require.NoError(t, stores.Inventory.AdjustQuantity(ctx, warehouseID, productID, 10))
	require.NoError(t, stores.Inventory.AdjustQuantity(ctx, warehouseID, productID, -4))

	inv, err := stores.Inventory.Get(ctx, warehouseID, productID)
	require.NoError(t, err)
	assert.Equal(t, 6, inv.Quantity)

	err = stores.Inventory.AdjustQuantity(ctx, warehouseID, productID, -7)
	require.Error(t, err, "going below zero must violate the check constraint")
}

func TestDeviceStore_BindIsExclusive(t *testing.T) {
	ctx := context.Background()
	integrationEnv(t, ctx)
	warehouseID, productID := seedRefData(t, ctx)

	stores := repository.NewStores(suite.RawDB)

	order := &domain.ProductionOrder{
		Status:            domain.ProductionStatusPending,
		MaterialProductID: productID,
		MaterialQuantity:  5,
		ResponsibleID:     uuid.New().String(),
	}
	require.NoError(t, stores.Production.Create(ctx, order))
	_ = warehouseID

	_, err := suite.RawDB.ExecContext(ctx,
		`INSERT INTO iot_devices (device_code) VALUES ($1)`, "LINE-01")
	require.NoError(t, err)

	require.NoError(t, stores.Devices.Bind(ctx, "LINE-01", order.ID))

	other := &domain.ProductionOrder{
		Status:            domain.ProductionStatusPending,
		MaterialProductID: productID,
		MaterialQuantity:  5,
		ResponsibleID:     uuid.New().String(),
	}
	require.NoError(t, stores.Production.Create(ctx, other))

	err = stores.Devices.Bind(ctx, "LINE-01", other.ID)
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)

	// Unbind frees the device for the next order.
	require.NoError(t, stores.Devices.Unbind(ctx, order.ID))
	require.NoError(t, stores.Devices.Bind(ctx, "LINE-01", other.ID))
}

func TestProductionStore_SingleProcessingEnforcedByIndex(t *testing.T) {
	ctx := context.Background()
	integrationEnv(t, ctx)
	_, productID := seedRefData(t, ctx)

	stores := repository.NewStores(suite.RawDB)

	first := &domain.ProductionOrder{
		Status:            domain.ProductionStatusProcessing,
		MaterialProductID: productID,
		MaterialQuantity:  1,
		ResponsibleID:     uuid.New().String(),
	}
	require.NoError(t, stores.Production.Create(ctx, first))

	second := &domain.ProductionOrder{
		Status:            domain.ProductionStatusProcessing,
		MaterialProductID: productID,
		MaterialQuantity:  1,
		ResponsibleID:     uuid.New().String(),
	}
	err := stores.Production.Create(ctx, second)
	require.Error(t, err, "two Processing orders must be impossible")

	processing, err := stores.Production.GetProcessing(ctx)
	require.NoError(t, err)
	require.NotNil(t, processing)
	assert.Equal(t, first.ID, processing.ID)
}

func TestTxRunner_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	integrationEnv(t, ctx)
	warehouseID, productID := seedRefData(t, ctx)

	runner := repository.NewTxRunner(suite.DB)

	err := runner.RunInTx(ctx, func(s domain.Stores) error {
		if err := s.Inventory.AdjustQuantity(ctx, warehouseID, productID, 10); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	stores := repository.NewStores(suite.RawDB)
	_, err = stores.Inventory.Get(ctx, warehouseID, productID)
	require.Error(t, err, "rolled back insert must not be visible")
}
