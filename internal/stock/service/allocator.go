package service

import (
	"context"
	"strconv"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/allocation"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Allocator performs lot reservation, release and transfer over a set of
// transaction-bound stores. Callers run it inside TxRunner.RunInTx so all
// batch and inventory mutations of one lifecycle operation commit or roll
// back together.
type Allocator struct {
	now func() time.Time
}

// NewAllocator creates an allocator using the given clock. Pass nil for
// the wall clock.
func NewAllocator(now func() time.Time) *Allocator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Allocator{now: now}
}

// availableQuantity locks and reads the aggregate for a key, treating a
// missing row as zero. The lock serializes concurrent allocations on the
// same (warehouse, product).
func (a *Allocator) availableQuantity(ctx context.Context, s domain.Stores, warehouseID, productID string) (int, error) {
	inv, err := s.Inventory.GetForUpdate(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return inv.Quantity, nil
}

// Reserve consumes quantity from the FIFO-ordered lots of (warehouse,
// product) and decrements the aggregate. The product is only used for
// error messages.
func (a *Allocator) Reserve(ctx context.Context, s domain.Stores, warehouseID string, product *domain.ProductInfo, quantity int) error {
	if quantity <= 0 {
		return errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}

	available, err := a.availableQuantity(ctx, s, warehouseID, product.ID)
	if err != nil {
		return err
	}
	if available < quantity {
		return errors.ConflictWithKey("stock.insufficient_stock", map[string]string{
			"product":   product.Name,
			"remaining": strconv.Itoa(available),
		})
	}

	now := a.now()
	batches, err := s.Batches.ListAvailable(ctx, warehouseID, product.ID, now)
	if err != nil {
		return err
	}

	plan, err := allocation.PlanReserve(batches, quantity, now)
	if err != nil {
		return a.mapPlanError(err, warehouseID, product)
	}

	for _, step := range plan.Steps {
		if err := s.Batches.ApplyConsumption(ctx, step.BatchID, step.Quantity); err != nil {
			return err
		}
	}
	return s.Inventory.AdjustQuantity(ctx, warehouseID, product.ID, -quantity)
}

// Release reverses a prior reservation LIFO (the most recently consumed
// lot is restored first) and increments the aggregate. Callers guarantee
// they never release more than they reserved.
func (a *Allocator) Release(ctx context.Context, s domain.Stores, warehouseID string, product *domain.ProductInfo, quantity int) error {
	if quantity <= 0 {
		return errors.Validation(map[string]string{"quantity": "must be greater than zero"})
	}

	// Take the same lock reservations take.
	if _, err := a.availableQuantity(ctx, s, warehouseID, product.ID); err != nil {
		return err
	}

	batches, err := s.Batches.ListConsumed(ctx, warehouseID, product.ID)
	if err != nil {
		return err
	}

	plan, err := allocation.PlanRelease(batches, quantity)
	if err != nil {
		return a.mapPlanError(err, warehouseID, product)
	}

	for _, step := range plan.Steps {
		if err := s.Batches.ApplyConsumption(ctx, step.BatchID, -step.Quantity); err != nil {
			return err
		}
	}
	return s.Inventory.AdjustQuantity(ctx, warehouseID, product.ID, quantity)
}

// Transfer reserves at the source, then lands the quantity in the
// destination lot this transfer owns, creating it on first use. The
// destination lot carries origin_transfer_id so updates and cancellation
// can find it again.
func (a *Allocator) Transfer(ctx context.Context, s domain.Stores, transferID, sourceWarehouse, destWarehouse string, product *domain.ProductInfo, quantity int) error {
	if err := a.Reserve(ctx, s, sourceWarehouse, product, quantity); err != nil {
		return err
	}

	batch, err := s.Batches.GetByOriginTransfer(ctx, transferID, product.ID)
	switch {
	case err == nil:
		if err := s.Batches.AddQuantityIn(ctx, batch.ID, quantity); err != nil {
			return err
		}
	case errors.Is(err, errors.ErrNotFound):
		batch = &domain.StockBatch{
			WarehouseID:      destWarehouse,
			ProductID:        product.ID,
			QuantityIn:       quantity,
			ImportDate:       a.now(),
			OriginTransferID: &transferID,
		}
		if err := s.Batches.Create(ctx, batch); err != nil {
			return err
		}
	default:
		return err
	}

	return s.Inventory.AdjustQuantity(ctx, destWarehouse, product.ID, quantity)
}

// ReverseTransfer removes quantity from the destination lot a transfer
// created and releases the same quantity back to the source lots. A fully
// reverted destination lot is deleted. Stock already consumed out of the
// destination lot cannot be pulled back, so any consumption blocks the
// delete path; on the shrink path the quantity_out check constraint
// rejects reverting below what was consumed.
func (a *Allocator) ReverseTransfer(ctx context.Context, s domain.Stores, transferID, sourceWarehouse, destWarehouse string, product *domain.ProductInfo, quantity int) error {
	batch, err := s.Batches.GetByOriginTransfer(ctx, transferID, product.ID)
	if err != nil {
		return err
	}

	if batch.QuantityIn-quantity <= 0 {
		if batch.QuantityOut > 0 {
			return errors.ConflictWithKey("stock.transfer_lot_consumed", map[string]string{
				"product":   product.Name,
				"warehouse": destWarehouse,
			})
		}
		if err := s.Batches.Delete(ctx, batch.ID); err != nil {
			return err
		}
	} else {
		if err := s.Batches.AddQuantityIn(ctx, batch.ID, -quantity); err != nil {
			return err
		}
	}

	if err := s.Inventory.AdjustQuantity(ctx, destWarehouse, product.ID, -quantity); err != nil {
		return err
	}

	return a.Release(ctx, s, sourceWarehouse, product, quantity)
}

func (a *Allocator) mapPlanError(err error, warehouseID string, product *domain.ProductInfo) error {
	var noLots *allocation.NoLotsError
	if errors.As(err, &noLots) {
		return errors.ConflictWithKey("stock.no_available_lots", map[string]string{
			"product":   product.Name,
			"warehouse": warehouseID,
		})
	}

	var shortfall *allocation.ShortfallError
	if errors.As(err, &shortfall) {
		return errors.ConflictWithKey("stock.insufficient_lot_coverage", map[string]string{
			"product":   product.Name,
			"shortfall": strconv.Itoa(shortfall.Requested - shortfall.Available),
		})
	}
	return err
}
