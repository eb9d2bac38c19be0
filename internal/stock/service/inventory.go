package service

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// StockService covers goods receipt and stock reporting: the operations
// around the lifecycles rather than inside them.
type StockService struct {
	runner     domain.TxRunner
	allocator  *Allocator
	products   domain.ProductCatalog
	warehouses domain.WarehouseDirectory
	publisher  EventPublisher
	logger     *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	runner domain.TxRunner,
	allocator *Allocator,
	products domain.ProductCatalog,
	warehouses domain.WarehouseDirectory,
	publisher EventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		runner:     runner,
		allocator:  allocator,
		products:   products,
		warehouses: warehouses,
		publisher:  publisher,
		logger:     log,
	}
}

// ReceiveStockRequest books received goods into a warehouse as a new lot.
type ReceiveStockRequest struct {
	WarehouseID string     `json:"warehouse_id" validate:"required,uuid"`
	ProductID   string     `json:"product_id" validate:"required,uuid"`
	Quantity    int        `json:"quantity" validate:"required,gt=0"`
	ImportDate  *time.Time `json:"import_date"`
	ExpireDate  *time.Time `json:"expire_date"`
}

// ReceiveStock creates a stock lot and increments the aggregate. This is
// the entry point of all stock that is not transferred or produced.
func (s *StockService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*domain.StockBatch, error) {
	if _, err := s.warehouses.GetByID(ctx, req.WarehouseID); err != nil {
		return nil, err
	}
	if _, err := s.products.GetByID(ctx, req.ProductID); err != nil {
		return nil, err
	}
	if req.ExpireDate != nil && !req.ExpireDate.After(s.allocator.now()) {
		return nil, errors.Validation(map[string]string{
			"expire_date": "must be in the future",
		})
	}

	importDate := s.allocator.now()
	if req.ImportDate != nil {
		importDate = *req.ImportDate
	}

	batch := &domain.StockBatch{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		QuantityIn:  req.Quantity,
		ImportDate:  importDate,
		ExpireDate:  req.ExpireDate,
	}

	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		// Same lock order as reservations: aggregate first, then lots.
		if _, err := s.allocator.availableQuantity(ctx, st, req.WarehouseID, req.ProductID); err != nil {
			return err
		}
		if err := st.Batches.Create(ctx, batch); err != nil {
			return err
		}
		return st.Inventory.AdjustQuantity(ctx, req.WarehouseID, req.ProductID, req.Quantity)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("warehouse_id", req.WarehouseID).
		Str("product_id", req.ProductID).
		Int("quantity", req.Quantity).
		Msg("stock received")
	s.publisher.PublishStockReceived(ctx, batch)
	return batch, nil
}

// GetWarehouseStock lists a warehouse's current stock with product names.
func (s *StockService) GetWarehouseStock(ctx context.Context, warehouseID string) ([]domain.WarehouseStock, error) {
	if _, err := s.warehouses.GetByID(ctx, warehouseID); err != nil {
		return nil, err
	}

	var rows []domain.WarehouseStock
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		rows, err = st.Inventory.ListByWarehouse(ctx, warehouseID)
		return err
	})
	return rows, err
}

// GetProductStock lists where a product is stocked.
func (s *StockService) GetProductStock(ctx context.Context, productID string) ([]domain.Inventory, error) {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	var rows []domain.Inventory
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		rows, err = st.Inventory.ListByProduct(ctx, productID)
		return err
	})
	return rows, err
}

// GetExpiringBatches reports lots in a warehouse that still hold stock
// and expire within the given number of days.
func (s *StockService) GetExpiringBatches(ctx context.Context, warehouseID string, withinDays int) ([]domain.StockBatch, error) {
	if _, err := s.warehouses.GetByID(ctx, warehouseID); err != nil {
		return nil, err
	}
	if withinDays <= 0 {
		withinDays = 30
	}

	cutoff := s.allocator.now().AddDate(0, 0, withinDays)
	var batches []domain.StockBatch
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		batches, err = st.Batches.ListExpiring(ctx, warehouseID, cutoff)
		return err
	})
	return batches, err
}
