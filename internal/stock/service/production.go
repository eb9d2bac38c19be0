package service

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// ProductionService drives the manufacturing state machine:
// Pending -> Processing -> WaitingApproval -> Finished, with Cancel only
// from Pending. Raw material is consumed when Processing starts; finished
// goods enter stock when the order finishes.
type ProductionService struct {
	runner     domain.TxRunner
	allocator  *Allocator
	products   domain.ProductCatalog
	warehouses domain.WarehouseDirectory
	users      domain.UserDirectory
	publisher  EventPublisher
	logger     *logger.Logger
}

// NewProductionService creates a new production service
func NewProductionService(
	runner domain.TxRunner,
	allocator *Allocator,
	products domain.ProductCatalog,
	warehouses domain.WarehouseDirectory,
	users domain.UserDirectory,
	publisher EventPublisher,
	log *logger.Logger,
) *ProductionService {
	return &ProductionService{
		runner:     runner,
		allocator:  allocator,
		products:   products,
		warehouses: warehouses,
		users:      users,
		publisher:  publisher,
		logger:     log,
	}
}

// FinishProductLine declares one finished-goods output of a production
// order and the warehouse it will land in.
type FinishProductLine struct {
	ProductID   string `json:"product_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity" validate:"gte=0"`
	WarehouseID string `json:"warehouse_id" validate:"required,uuid"`
}

// CreateProductionRequest creates a production order in Pending.
type CreateProductionRequest struct {
	MaterialProductID   string              `json:"material_product_id" validate:"required,uuid"`
	MaterialQuantity    int                 `json:"material_quantity" validate:"required,gt=0"`
	MaterialWarehouseID *string             `json:"material_warehouse_id" validate:"omitempty,uuid"`
	FinishProducts      []FinishProductLine `json:"finish_products" validate:"required,min=1,dive"`
	ResponsibleID       string              `json:"responsible_id" validate:"required,uuid"`
	Note                *string             `json:"note" validate:"omitempty,max=1000"`
}

// StartProcessingRequest binds a device and designates the raw-material
// warehouse when the order is absent one.
type StartProcessingRequest struct {
	DeviceCode  string  `json:"device_code" validate:"required"`
	WarehouseID *string `json:"warehouse_id" validate:"omitempty,uuid"`
}

// CreateProduction validates the material line, the finished-product list
// and the responsible employee, then persists the order in Pending. No
// stock moves yet.
func (s *ProductionService) CreateProduction(ctx context.Context, req CreateProductionRequest) (*domain.ProductionOrder, error) {
	if _, err := s.products.GetByID(ctx, req.MaterialProductID); err != nil {
		return nil, err
	}
	if req.MaterialWarehouseID != nil {
		if _, err := s.warehouses.GetByID(ctx, *req.MaterialWarehouseID); err != nil {
			return nil, err
		}
	}
	if _, err := s.users.GetByID(ctx, req.ResponsibleID); err != nil {
		return nil, err
	}

	fps := make([]domain.FinishProduct, 0, len(req.FinishProducts))
	for _, line := range req.FinishProducts {
		if _, err := s.products.GetByID(ctx, line.ProductID); err != nil {
			return nil, err
		}
		if _, err := s.warehouses.GetByID(ctx, line.WarehouseID); err != nil {
			return nil, err
		}
		if line.Quantity == 0 {
			// Zero-quantity lines are declared outputs whose actual
			// yield is unknown until the run ends; they are kept but
			// produce no stock at Finished.
			s.logger.Debug().Str("product_id", line.ProductID).Msg("zero-quantity finish product line")
		}
		fps = append(fps, domain.FinishProduct{
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			WarehouseID: line.WarehouseID,
		})
	}

	order := &domain.ProductionOrder{
		Status:              domain.ProductionStatusPending,
		MaterialProductID:   req.MaterialProductID,
		MaterialQuantity:    req.MaterialQuantity,
		MaterialWarehouseID: req.MaterialWarehouseID,
		ResponsibleID:       req.ResponsibleID,
		Note:                req.Note,
		FinishProducts:      fps,
	}

	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		return st.Production.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("production_id", order.ID).
		Str("material_product_id", order.MaterialProductID).
		Int("material_quantity", order.MaterialQuantity).
		Msg("production order created")
	return order, nil
}

// GetProduction returns a production order with its finished-product
// lines and bound device.
func (s *ProductionService) GetProduction(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	var order *domain.ProductionOrder
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		order, err = st.Production.Get(ctx, id)
		return err
	})
	return order, err
}

// ListProductions lists production orders, optionally by status.
func (s *ProductionService) ListProductions(ctx context.Context, status string, limit, offset int) ([]domain.ProductionOrder, error) {
	var orders []domain.ProductionOrder
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		orders, err = st.Production.List(ctx, status, limit, offset)
		return err
	})
	return orders, err
}

// StartProcessing moves Pending -> Processing. Exactly one order may be
// Processing at a time and the device must be free; both checks are also
// enforced by database constraints, so a concurrent start loses at commit
// even if it passed the in-transaction checks.
func (s *ProductionService) StartProcessing(ctx context.Context, productionID string, req StartProcessingRequest) (*domain.ProductionOrder, error) {
	var order *domain.ProductionOrder
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		po, err := st.Production.GetForUpdate(ctx, productionID)
		if err != nil {
			return err
		}
		if !domain.CanProductionTransition(po.Status, domain.ProductionStatusProcessing) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": po.Status, "to": domain.ProductionStatusProcessing,
			})
		}

		processing, err := st.Production.GetProcessing(ctx)
		if err != nil {
			return err
		}
		if processing != nil {
			return errors.ConflictWithKey("production.already_processing", map[string]string{
				"id": processing.ID,
			})
		}

		if _, err := st.Devices.Get(ctx, req.DeviceCode); err != nil {
			return err
		}
		if err := st.Devices.Bind(ctx, req.DeviceCode, po.ID); err != nil {
			return err
		}

		warehouseID := ""
		switch {
		case req.WarehouseID != nil:
			warehouseID = *req.WarehouseID
		case po.MaterialWarehouseID != nil:
			warehouseID = *po.MaterialWarehouseID
		default:
			return errors.Validation(map[string]string{
				"warehouse_id": "raw-material warehouse must be designated",
			})
		}

		product, err := s.products.GetByID(ctx, po.MaterialProductID)
		if err != nil {
			return err
		}
		if err := s.allocator.Reserve(ctx, st, warehouseID, product, po.MaterialQuantity); err != nil {
			return err
		}

		if err := st.Production.AddMaterial(ctx, &domain.ProductionMaterial{
			ProductionID: po.ID,
			ProductID:    po.MaterialProductID,
			Quantity:     po.MaterialQuantity,
			WarehouseID:  warehouseID,
		}); err != nil {
			return err
		}

		if err := st.Production.UpdateStatus(ctx, po.ID, domain.ProductionStatusProcessing); err != nil {
			return err
		}
		order, err = st.Production.Get(ctx, po.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishProductionStatusChanged(ctx, productionID,
		domain.ProductionStatusPending, domain.ProductionStatusProcessing, req.DeviceCode)
	return order, nil
}

// MoveToWaitingApproval moves Processing -> WaitingApproval and frees the
// bound device; the physical run is over, only sign-off remains.
func (s *ProductionService) MoveToWaitingApproval(ctx context.Context, productionID string) (*domain.ProductionOrder, error) {
	var order *domain.ProductionOrder
	var deviceCode string
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		po, err := st.Production.GetForUpdate(ctx, productionID)
		if err != nil {
			return err
		}
		if !domain.CanProductionTransition(po.Status, domain.ProductionStatusWaitingApproval) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": po.Status, "to": domain.ProductionStatusWaitingApproval,
			})
		}
		if po.DeviceCode != nil {
			deviceCode = *po.DeviceCode
		}

		if err := st.Devices.Unbind(ctx, po.ID); err != nil {
			return err
		}
		if err := st.Production.UpdateStatus(ctx, po.ID, domain.ProductionStatusWaitingApproval); err != nil {
			return err
		}
		order, err = st.Production.Get(ctx, po.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishProductionStatusChanged(ctx, productionID,
		domain.ProductionStatusProcessing, domain.ProductionStatusWaitingApproval, deviceCode)
	return order, nil
}

// FinishProduction moves WaitingApproval -> Finished. Every positive
// finished-product line becomes a fresh stock lot in its warehouse; this
// is pure lot creation, the inverse of consumption, with no FIFO walk.
func (s *ProductionService) FinishProduction(ctx context.Context, productionID string) (*domain.ProductionOrder, error) {
	var order *domain.ProductionOrder
	var produced int
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		po, err := st.Production.GetForUpdate(ctx, productionID)
		if err != nil {
			return err
		}
		if !domain.CanProductionTransition(po.Status, domain.ProductionStatusFinished) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": po.Status, "to": domain.ProductionStatusFinished,
			})
		}
		if len(po.FinishProducts) == 0 {
			return errors.ConflictWithKey("production.no_finished_products")
		}

		now := s.allocator.now()
		for _, fp := range po.FinishProducts {
			if fp.Quantity == 0 {
				continue
			}
			// Lock the destination key like any other stock mutation.
			if _, err := s.allocator.availableQuantity(ctx, st, fp.WarehouseID, fp.ProductID); err != nil {
				return err
			}
			batch := &domain.StockBatch{
				WarehouseID: fp.WarehouseID,
				ProductID:   fp.ProductID,
				QuantityIn:  fp.Quantity,
				ImportDate:  now,
			}
			if err := st.Batches.Create(ctx, batch); err != nil {
				return err
			}
			if err := st.Inventory.AdjustQuantity(ctx, fp.WarehouseID, fp.ProductID, fp.Quantity); err != nil {
				return err
			}
			produced++
		}

		if err := st.Production.UpdateStatus(ctx, po.ID, domain.ProductionStatusFinished); err != nil {
			return err
		}
		order, err = st.Production.Get(ctx, po.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishProductionStatusChanged(ctx, productionID,
		domain.ProductionStatusWaitingApproval, domain.ProductionStatusFinished, "")
	s.publisher.PublishProductionFinished(ctx, productionID, produced)
	return order, nil
}

// CancelProduction moves Pending -> Cancel. Nothing was consumed yet, so
// there is nothing to revert.
func (s *ProductionService) CancelProduction(ctx context.Context, productionID string) (*domain.ProductionOrder, error) {
	var order *domain.ProductionOrder
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		po, err := st.Production.GetForUpdate(ctx, productionID)
		if err != nil {
			return err
		}
		if po.Status != domain.ProductionStatusPending {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": po.Status, "to": domain.ProductionStatusCancel,
			})
		}
		if err := st.Production.UpdateStatus(ctx, po.ID, domain.ProductionStatusCancel); err != nil {
			return err
		}
		order, err = st.Production.Get(ctx, po.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishProductionStatusChanged(ctx, productionID,
		domain.ProductionStatusPending, domain.ProductionStatusCancel, "")
	return order, nil
}
