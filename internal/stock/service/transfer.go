package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// TransferService drives the inter-warehouse transfer state machine:
// InTransit -> Transferred | Cancel. Stock physically moves at creation;
// Transferred is only the receipt confirmation, and Cancel reverts the
// destination lots the transfer created.
type TransferService struct {
	runner     domain.TxRunner
	allocator  *Allocator
	products   domain.ProductCatalog
	warehouses domain.WarehouseDirectory
	publisher  EventPublisher
	logger     *logger.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(
	runner domain.TxRunner,
	allocator *Allocator,
	products domain.ProductCatalog,
	warehouses domain.WarehouseDirectory,
	publisher EventPublisher,
	log *logger.Logger,
) *TransferService {
	return &TransferService{
		runner:     runner,
		allocator:  allocator,
		products:   products,
		warehouses: warehouses,
		publisher:  publisher,
		logger:     log,
	}
}

// CreateTransferRequest moves stock between two distinct warehouses.
type CreateTransferRequest struct {
	SourceWarehouseID string             `json:"source_warehouse_id" validate:"required,uuid"`
	DestWarehouseID   string             `json:"dest_warehouse_id" validate:"required,uuid"`
	Lines             []domain.OrderLine `json:"lines" validate:"required,min=1,dive"`
	Note              *string            `json:"note" validate:"omitempty,max=1000"`
}

// UpdateTransferRequest replaces the transfer's lines while InTransit.
type UpdateTransferRequest struct {
	Lines []domain.OrderLine `json:"lines" validate:"required,min=1,dive"`
}

func (s *TransferService) resolveLines(ctx context.Context, lines []domain.OrderLine) (map[string]*domain.ProductInfo, error) {
	seen := make(map[string]bool, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if seen[line.ProductID] {
			return nil, errors.Validation(map[string]string{
				"lines": "duplicate product " + line.ProductID,
			})
		}
		seen[line.ProductID] = true
		ids = append(ids, line.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if products[id] == nil {
			return nil, errors.NotFoundWithKey("product")
		}
	}
	return products, nil
}

// CreateTransfer reserves at the source and lands destination lots for
// every line, persisting the transfer InTransit.
func (s *TransferService) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*domain.Transaction, error) {
	if req.SourceWarehouseID == req.DestWarehouseID {
		return nil, errors.ValidationWithKey("stock.same_warehouse")
	}
	if _, err := s.warehouses.GetByID(ctx, req.SourceWarehouseID); err != nil {
		return nil, err
	}
	if _, err := s.warehouses.GetByID(ctx, req.DestWarehouseID); err != nil {
		return nil, err
	}

	products, err := s.resolveLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	var responsibleID *string
	if act := actor.FromContext(ctx); act != nil && !act.IsSystem() {
		responsibleID = &act.ID
	}

	var transfer *domain.Transaction
	err = s.runner.RunInTx(ctx, func(st domain.Stores) error {
		totalCost := decimal.Zero
		totalWeight := decimal.Zero

		transfer = &domain.Transaction{
			Type:          domain.TransactionTransfer,
			Status:        domain.TransferStatusInTransit,
			WarehouseID:   req.SourceWarehouseID,
			WarehouseInID: &req.DestWarehouseID,
			ResponsibleID: responsibleID,
			Note:          req.Note,
		}
		if err := st.Transactions.Create(ctx, transfer); err != nil {
			return err
		}

		for _, line := range req.Lines {
			product := products[line.ProductID]
			if err := s.allocator.Transfer(ctx, st, transfer.ID, req.SourceWarehouseID, req.DestWarehouseID, product, line.Quantity); err != nil {
				return err
			}

			qty := decimal.NewFromInt(int64(line.Quantity))
			totalCost = totalCost.Add(product.UnitPrice.Mul(qty))
			totalWeight = totalWeight.Add(product.WeightPerUnit.Mul(qty))

			detail := domain.TransactionDetail{
				TransactionID: transfer.ID,
				ProductID:     line.ProductID,
				Quantity:      line.Quantity,
				UnitPrice:     product.UnitPrice,
				WeightPerUnit: product.WeightPerUnit,
			}
			if err := st.Transactions.CreateDetail(ctx, &detail); err != nil {
				return err
			}
			transfer.Details = append(transfer.Details, detail)
		}

		transfer.TotalCost = totalCost
		transfer.TotalWeight = totalWeight
		return st.Transactions.UpdateTotals(ctx, transfer.ID, totalCost, totalWeight)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transfer_id", transfer.ID).
		Str("source", req.SourceWarehouseID).
		Str("dest", req.DestWarehouseID).
		Int("lines", len(transfer.Details)).
		Msg("transfer created")
	s.publisher.PublishTransferCreated(ctx, transfer)
	return transfer, nil
}

// GetTransfer returns a transfer with its lines.
func (s *TransferService) GetTransfer(ctx context.Context, id string) (*domain.Transaction, error) {
	var transfer *domain.Transaction
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.Get(ctx, id)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionTransfer {
			return errors.NotFoundWithKey("transfer")
		}
		transfer = tx
		return nil
	})
	return transfer, err
}

// ListTransfers lists transfers.
func (s *TransferService) ListTransfers(ctx context.Context, status, warehouseID string, limit, offset int) ([]domain.Transaction, error) {
	var transfers []domain.Transaction
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		transfers, err = st.Transactions.List(ctx, domain.TransactionFilter{
			Type:        domain.TransactionTransfer,
			Status:      status,
			WarehouseID: warehouseID,
			Limit:       limit,
			Offset:      offset,
		})
		return err
	})
	return transfers, err
}

// UpdateTransfer reconciles lines while InTransit: increases re-run the
// transfer for the delta, decreases and removals revert the destination
// lot and restore the source.
func (s *TransferService) UpdateTransfer(ctx context.Context, transferID string, req UpdateTransferRequest) (*domain.Transaction, error) {
	products, err := s.resolveLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	var transfer *domain.Transaction
	err = s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionTransfer {
			return errors.NotFoundWithKey("transfer")
		}
		if tx.Status != domain.TransferStatusInTransit {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": tx.Status,
			})
		}

		source := tx.WarehouseID
		dest := *tx.WarehouseInID

		requested := make(map[string]int, len(req.Lines))
		for _, line := range req.Lines {
			requested[line.ProductID] = line.Quantity
		}
		existing := make(map[string]domain.TransactionDetail, len(tx.Details))
		for _, d := range tx.Details {
			existing[d.ProductID] = d
		}

		for productID, detail := range existing {
			newQty, keep := requested[productID]
			product := products[productID]
			if product == nil {
				info, err := s.products.GetByID(ctx, productID)
				if err != nil {
					return err
				}
				product = info
			}
			switch {
			case !keep:
				if err := s.allocator.ReverseTransfer(ctx, st, tx.ID, source, dest, product, detail.Quantity); err != nil {
					return err
				}
				if err := st.Transactions.DeleteDetail(ctx, detail.ID); err != nil {
					return err
				}
			case newQty < detail.Quantity:
				if err := s.allocator.ReverseTransfer(ctx, st, tx.ID, source, dest, product, detail.Quantity-newQty); err != nil {
					return err
				}
				if err := st.Transactions.UpdateDetailQuantity(ctx, detail.ID, newQty); err != nil {
					return err
				}
			}
		}

		for _, line := range req.Lines {
			product := products[line.ProductID]
			detail, exists := existing[line.ProductID]
			switch {
			case !exists:
				if err := s.allocator.Transfer(ctx, st, tx.ID, source, dest, product, line.Quantity); err != nil {
					return err
				}
				if err := st.Transactions.CreateDetail(ctx, &domain.TransactionDetail{
					TransactionID: tx.ID,
					ProductID:     line.ProductID,
					Quantity:      line.Quantity,
					UnitPrice:     product.UnitPrice,
					WeightPerUnit: product.WeightPerUnit,
				}); err != nil {
					return err
				}
			case line.Quantity > detail.Quantity:
				if err := s.allocator.Transfer(ctx, st, tx.ID, source, dest, product, line.Quantity-detail.Quantity); err != nil {
					return err
				}
				if err := st.Transactions.UpdateDetailQuantity(ctx, detail.ID, line.Quantity); err != nil {
					return err
				}
			}
		}

		if err := s.recomputeTotals(ctx, st, tx.ID); err != nil {
			return err
		}
		transfer, err = st.Transactions.Get(ctx, tx.ID)
		return err
	})
	return transfer, err
}

func (s *TransferService) recomputeTotals(ctx context.Context, st domain.Stores, transactionID string) error {
	details, err := st.Transactions.ListDetails(ctx, transactionID)
	if err != nil {
		return err
	}

	totalCost := decimal.Zero
	totalWeight := decimal.Zero
	for i := range details {
		totalCost = totalCost.Add(details[i].LineCost())
		totalWeight = totalWeight.Add(details[i].LineWeight())
	}
	return st.Transactions.UpdateTotals(ctx, transactionID, totalCost, totalWeight)
}

// ConfirmTransfer moves InTransit -> Transferred. Pure receipt
// confirmation, no stock moves.
func (s *TransferService) ConfirmTransfer(ctx context.Context, transferID string) (*domain.Transaction, error) {
	var transfer *domain.Transaction
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionTransfer {
			return errors.NotFoundWithKey("transfer")
		}
		if !domain.CanTransferTransition(tx.Status, domain.TransferStatusTransferred) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": domain.TransferStatusTransferred,
			})
		}
		if err := st.Transactions.UpdateStatus(ctx, tx.ID, domain.TransferStatusTransferred); err != nil {
			return err
		}
		transfer, err = st.Transactions.Get(ctx, tx.ID)
		return err
	})
	return transfer, err
}

// CancelTransfer moves InTransit -> Cancel, reverting every destination
// lot this transfer created and restoring the source lots LIFO.
func (s *TransferService) CancelTransfer(ctx context.Context, transferID string) (*domain.Transaction, error) {
	var transfer *domain.Transaction
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionTransfer {
			return errors.NotFoundWithKey("transfer")
		}
		if !domain.CanTransferTransition(tx.Status, domain.TransferStatusCancel) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": domain.TransferStatusCancel,
			})
		}

		source := tx.WarehouseID
		dest := *tx.WarehouseInID
		for _, detail := range tx.Details {
			product, err := s.products.GetByID(ctx, detail.ProductID)
			if err != nil {
				return err
			}
			if err := s.allocator.ReverseTransfer(ctx, st, tx.ID, source, dest, product, detail.Quantity); err != nil {
				return err
			}
		}

		if err := st.Transactions.UpdateStatus(ctx, tx.ID, domain.TransferStatusCancel); err != nil {
			return err
		}
		transfer, err = st.Transactions.Get(ctx, tx.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishTransferCancelled(ctx, transfer)
	return transfer, nil
}
