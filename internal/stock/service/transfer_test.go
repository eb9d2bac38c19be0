package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/internal/stock/service"
)

func newTransferService(e *testEnv) *service.TransferService {
	return service.NewTransferService(
		e.runner,
		service.NewAllocator(e.clock()),
		e.catalog,
		e.warehouses,
		nopPublisher{},
		testLogger(),
	)
}

func destBatch(e *testEnv, transferID, productID string) *domain.StockBatch {
	for _, b := range e.store.batches {
		if b.OriginTransferID != nil && *b.OriginTransferID == transferID && b.ProductID == productID {
			return b
		}
	}
	return nil
}

func TestCreateTransfer_MovesStockBetweenWarehouses(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	older := e.addBatch("w1", "p1", 10, 1)
	newer := e.addBatch("w1", "p1", 5, 2)

	svc := newTransferService(e)
	transfer, err := svc.CreateTransfer(context.Background(), service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 12}},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransferStatusInTransit, transfer.Status)
	assert.Equal(t, "w1", transfer.WarehouseID)
	require.NotNil(t, transfer.WarehouseInID)
	assert.Equal(t, "w2", *transfer.WarehouseInID)

	// Source consumed FIFO, destination holds one lot owned by this transfer.
	assert.Equal(t, 10, e.store.batches[older.ID].QuantityOut)
	assert.Equal(t, 2, e.store.batches[newer.ID].QuantityOut)
	assert.Equal(t, 3, e.quantity("w1", "p1"))
	assert.Equal(t, 12, e.quantity("w2", "p1"))

	dest := destBatch(e, transfer.ID, "p1")
	require.NotNil(t, dest)
	assert.Equal(t, "w2", dest.WarehouseID)
	assert.Equal(t, 12, dest.QuantityIn)
	assert.Equal(t, 0, dest.QuantityOut)
}

func TestCreateTransfer_SameWarehouseRejected(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addBatch("w1", "p1", 10, 1)

	svc := newTransferService(e)
	_, err := svc.CreateTransfer(context.Background(), service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w1",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 2}},
	})

	appErr := asAppErr(t, err)
	assert.Equal(t, "stock.same_warehouse", appErr.MessageKey)
}

func TestCreateTransfer_InsufficientSourceStock(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	e.addBatch("w1", "p1", 3, 1)

	svc := newTransferService(e)
	_, err := svc.CreateTransfer(context.Background(), service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 5}},
	})

	appErr := asAppErr(t, err)
	assert.Equal(t, "stock.insufficient_stock", appErr.MessageKey)
	assert.Equal(t, 3, e.quantity("w1", "p1"))
	assert.Equal(t, 0, e.quantity("w2", "p1"))
	assert.Empty(t, e.store.transactions)
}

func TestCancelTransfer_RestoresSourceAndRemovesDestLot(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	source := e.addBatch("w1", "p1", 10, 1)

	svc := newTransferService(e)
	ctx := context.Background()
	transfer, err := svc.CreateTransfer(ctx, service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, e.quantity("w1", "p1"))
	assert.Equal(t, 6, e.quantity("w2", "p1"))

	transfer, err = svc.CancelTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancel, transfer.Status)

	assert.Equal(t, 10, e.quantity("w1", "p1"))
	assert.Equal(t, 0, e.quantity("w2", "p1"))
	assert.Equal(t, 0, e.store.batches[source.ID].QuantityOut)
	assert.Nil(t, destBatch(e, transfer.ID, "p1"))
}

func TestCancelTransfer_ConsumedDestinationBlocksCancel(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	e.addBatch("w1", "p1", 10, 1)

	svc := newTransferService(e)
	ctx := context.Background()
	transfer, err := svc.CreateTransfer(ctx, service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)

	// Part of the transferred stock was sold out of w2 in the meantime.
	dest := destBatch(e, transfer.ID, "p1")
	require.NotNil(t, dest)
	dest.QuantityOut = 4
	e.store.inventory[invKey("w2", "p1")].Quantity -= 4

	_, err = svc.CancelTransfer(ctx, transfer.ID)
	appErr := asAppErr(t, err)
	assert.Equal(t, "stock.transfer_lot_consumed", appErr.MessageKey)

	// The failed cancel must not leave a half-reverted transfer.
	got, err := svc.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusInTransit, got.Status)
	assert.Equal(t, 4, e.quantity("w1", "p1"))
	assert.Equal(t, 2, e.quantity("w2", "p1"))
}

func TestCancelTransfer_ConsumedDestinationWithOtherStockBlocksCancel(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	e.addBatch("w1", "p1", 10, 1)
	// w2 already holds unrelated stock, so the aggregate stays positive
	// even after the transferred lot was partially sold.
	e.addBatch("w2", "p1", 10, 1)

	svc := newTransferService(e)
	ctx := context.Background()
	transfer, err := svc.CreateTransfer(ctx, service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, 16, e.quantity("w2", "p1"))

	dest := destBatch(e, transfer.ID, "p1")
	require.NotNil(t, dest)
	dest.QuantityOut = 3
	e.store.inventory[invKey("w2", "p1")].Quantity -= 3

	_, err = svc.CancelTransfer(ctx, transfer.ID)
	appErr := asAppErr(t, err)
	assert.Equal(t, "stock.transfer_lot_consumed", appErr.MessageKey)

	// Nothing moved: the aggregate still matches the sum of the lots in
	// both warehouses.
	got, err := svc.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusInTransit, got.Status)
	assert.Equal(t, 4, e.quantity("w1", "p1"))
	assert.Equal(t, 13, e.quantity("w2", "p1"))
	assert.Equal(t, e.batchSum("w1", "p1"), e.quantity("w1", "p1"))
	assert.Equal(t, e.batchSum("w2", "p1"), e.quantity("w2", "p1"))
}

func TestConfirmTransfer_TerminalStates(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	e.addBatch("w1", "p1", 10, 1)

	svc := newTransferService(e)
	ctx := context.Background()
	transfer, err := svc.CreateTransfer(ctx, service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)

	transfer, err = svc.ConfirmTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusTransferred, transfer.Status)

	// Transferred is terminal: no cancel, no re-confirm.
	_, err = svc.CancelTransfer(ctx, transfer.ID)
	appErr := asAppErr(t, err)
	assert.Equal(t, "stock.invalid_transition", appErr.MessageKey)

	_, err = svc.ConfirmTransfer(ctx, transfer.ID)
	appErr = asAppErr(t, err)
	assert.Equal(t, "stock.invalid_transition", appErr.MessageKey)

	// Confirmation moved no stock.
	assert.Equal(t, 4, e.quantity("w1", "p1"))
	assert.Equal(t, 6, e.quantity("w2", "p1"))
}

func TestUpdateTransfer_DecreaseRestoresSource(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	e.addBatch("w1", "p1", 10, 1)

	svc := newTransferService(e)
	ctx := context.Background()
	transfer, err := svc.CreateTransfer(ctx, service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 8}},
	})
	require.NoError(t, err)

	transfer, err = svc.UpdateTransfer(ctx, transfer.ID, service.UpdateTransferRequest{
		Lines: []domain.OrderLine{{ProductID: "p1", Quantity: 5}},
	})
	require.NoError(t, err)

	require.Len(t, transfer.Details, 1)
	assert.Equal(t, 5, transfer.Details[0].Quantity)
	assert.Equal(t, "500", transfer.TotalCost.String())
	assert.Equal(t, 5, e.quantity("w1", "p1"))
	assert.Equal(t, 5, e.quantity("w2", "p1"))

	dest := destBatch(e, transfer.ID, "p1")
	require.NotNil(t, dest)
	assert.Equal(t, 5, dest.QuantityIn)
}

func TestUpdateTransfer_IncreaseGrowsDestLot(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	e.addBatch("w1", "p1", 10, 1)

	svc := newTransferService(e)
	ctx := context.Background()
	transfer, err := svc.CreateTransfer(ctx, service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines:             []domain.OrderLine{{ProductID: "p1", Quantity: 3}},
	})
	require.NoError(t, err)

	transfer, err = svc.UpdateTransfer(ctx, transfer.ID, service.UpdateTransferRequest{
		Lines: []domain.OrderLine{{ProductID: "p1", Quantity: 7}},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, e.quantity("w1", "p1"))
	assert.Equal(t, 7, e.quantity("w2", "p1"))

	// The transfer still owns a single destination lot.
	dest := destBatch(e, transfer.ID, "p1")
	require.NotNil(t, dest)
	assert.Equal(t, 7, dest.QuantityIn)
}

func TestUpdateTransfer_RemovedLineFullyReverted(t *testing.T) {
	e := newTestEnv()
	e.addProduct("p1", "Gạch men", 100)
	e.addProduct("p2", "Xi măng", 50)
	e.addWarehouse("w1", "Kho 1")
	e.addWarehouse("w2", "Kho 2")
	e.addBatch("w1", "p1", 10, 1)
	e.addBatch("w1", "p2", 10, 2)

	svc := newTransferService(e)
	ctx := context.Background()
	transfer, err := svc.CreateTransfer(ctx, service.CreateTransferRequest{
		SourceWarehouseID: "w1",
		DestWarehouseID:   "w2",
		Lines: []domain.OrderLine{
			{ProductID: "p1", Quantity: 4},
			{ProductID: "p2", Quantity: 6},
		},
	})
	require.NoError(t, err)

	transfer, err = svc.UpdateTransfer(ctx, transfer.ID, service.UpdateTransferRequest{
		Lines: []domain.OrderLine{{ProductID: "p1", Quantity: 4}},
	})
	require.NoError(t, err)

	require.Len(t, transfer.Details, 1)
	assert.Equal(t, "p1", transfer.Details[0].ProductID)
	assert.Equal(t, 10, e.quantity("w1", "p2"))
	assert.Equal(t, 0, e.quantity("w2", "p2"))
	assert.Nil(t, destBatch(e, transfer.ID, "p2"))
}
