package allocation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/stockflow-backend/internal/stock/allocation"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func batch(id string, in, out int, importDay int) domain.StockBatch {
	return domain.StockBatch{
		ID:          id,
		WarehouseID: "w1",
		ProductID:   "p1",
		QuantityIn:  in,
		QuantityOut: out,
		ImportDate:  time.Date(2024, 1, importDay, 0, 0, 0, 0, time.UTC),
	}
}

func expiredBatch(id string, in, out int, importDay int) domain.StockBatch {
	b := batch(id, in, out, importDay)
	expired := testNow.Add(-24 * time.Hour)
	b.ExpireDate = &expired
	return b
}

func TestPlanReserve_FIFOAcrossLots(t *testing.T) {
	// Two lots of 10 and 5, oldest first. Reserving 12 must fill the
	// older lot completely and take 2 from the newer one.
	batches := []domain.StockBatch{
		batch("b2", 5, 0, 10),
		batch("b1", 10, 0, 1),
	}

	plan, err := allocation.PlanReserve(batches, 12, testNow)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "b1", plan.Steps[0].BatchID)
	assert.Equal(t, 10, plan.Steps[0].Quantity)
	assert.Equal(t, "b2", plan.Steps[1].BatchID)
	assert.Equal(t, 2, plan.Steps[1].Quantity)
	assert.Equal(t, 12, plan.Total)
}

func TestPlanReserve_SkipsExpiredLots(t *testing.T) {
	batches := []domain.StockBatch{
		expiredBatch("b1", 100, 0, 1),
		batch("b2", 5, 0, 10),
	}

	plan, err := allocation.PlanReserve(batches, 5, testNow)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "b2", plan.Steps[0].BatchID)
}

func TestPlanReserve_SkipsFullyConsumedLots(t *testing.T) {
	batches := []domain.StockBatch{
		batch("b1", 10, 10, 1),
		batch("b2", 8, 3, 5),
	}

	plan, err := allocation.PlanReserve(batches, 5, testNow)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "b2", plan.Steps[0].BatchID)
	assert.Equal(t, 5, plan.Steps[0].Quantity)
}

func TestPlanReserve_TieBreakByBatchID(t *testing.T) {
	// Same import date: the lower id wins so allocation is deterministic.
	batches := []domain.StockBatch{
		batch("b9", 5, 0, 1),
		batch("b1", 5, 0, 1),
	}

	plan, err := allocation.PlanReserve(batches, 3, testNow)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "b1", plan.Steps[0].BatchID)
}

func TestPlanReserve_ShortfallDiscardsPlan(t *testing.T) {
	batches := []domain.StockBatch{
		batch("b1", 10, 0, 1),
		batch("b2", 5, 0, 10),
	}

	plan, err := allocation.PlanReserve(batches, 20, testNow)
	require.Error(t, err)

	var shortfall *allocation.ShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 20, shortfall.Requested)
	assert.Equal(t, 15, shortfall.Available)
	assert.Empty(t, plan.Steps, "failed reservation must plan no mutation")
}

func TestPlanReserve_NoUsableLots(t *testing.T) {
	batches := []domain.StockBatch{
		expiredBatch("b1", 10, 0, 1),
		batch("b2", 10, 10, 5),
	}

	_, err := allocation.PlanReserve(batches, 1, testNow)

	var noLots *allocation.NoLotsError
	require.ErrorAs(t, err, &noLots)
	assert.Equal(t, 1, noLots.Requested)
}

func TestPlanReserve_RejectsNonPositiveQuantity(t *testing.T) {
	_, err := allocation.PlanReserve(nil, 0, testNow)
	assert.Error(t, err)

	_, err = allocation.PlanReserve(nil, -3, testNow)
	assert.Error(t, err)
}

func TestPlanReserve_ExpiredStockNeverAllocated(t *testing.T) {
	// Only an expired lot holds stock: reservation fails rather than
	// handing out expired goods.
	batches := []domain.StockBatch{
		expiredBatch("b1", 50, 0, 1),
	}

	_, err := allocation.PlanReserve(batches, 10, testNow)
	require.Error(t, err)
}

func TestPlanRelease_LIFOUndoesNewestConsumptionFirst(t *testing.T) {
	batches := []domain.StockBatch{
		batch("b1", 10, 10, 1),
		batch("b2", 5, 2, 10),
	}

	plan, err := allocation.PlanRelease(batches, 6)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "b2", plan.Steps[0].BatchID)
	assert.Equal(t, 2, plan.Steps[0].Quantity)
	assert.Equal(t, "b1", plan.Steps[1].BatchID)
	assert.Equal(t, 4, plan.Steps[1].Quantity)
}

func TestPlanRelease_SkipsUnconsumedLots(t *testing.T) {
	batches := []domain.StockBatch{
		batch("b1", 10, 0, 1),
		batch("b2", 5, 5, 10),
	}

	plan, err := allocation.PlanRelease(batches, 5)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "b2", plan.Steps[0].BatchID)
}

func TestPlanRelease_OverReleaseFails(t *testing.T) {
	batches := []domain.StockBatch{
		batch("b1", 10, 3, 1),
	}

	_, err := allocation.PlanRelease(batches, 4)

	var shortfall *allocation.ShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 3, shortfall.Available)
}

func TestReserveThenRelease_RoundTrips(t *testing.T) {
	// Reserving then releasing the same quantity leaves every lot where
	// it started, regardless of how the quantity was split.
	batches := []domain.StockBatch{
		batch("b1", 10, 0, 1),
		batch("b2", 5, 0, 10),
		batch("b3", 7, 0, 20),
	}

	plan, err := allocation.PlanReserve(batches, 13, testNow)
	require.NoError(t, err)

	consumed := map[string]int{}
	for _, step := range plan.Steps {
		consumed[step.BatchID] += step.Quantity
	}
	for i := range batches {
		batches[i].QuantityOut += consumed[batches[i].ID]
	}

	release, err := allocation.PlanRelease(batches, 13)
	require.NoError(t, err)

	for _, step := range release.Steps {
		consumed[step.BatchID] -= step.Quantity
	}
	for id, remaining := range consumed {
		assert.Zerof(t, remaining, "batch %s not fully restored", id)
	}
}
