package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/actor"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// EventPublisher is the slice of the events package the services use.
// Tests substitute a no-op implementation.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, tx *domain.Transaction)
	PublishOrderStatusChanged(ctx context.Context, orderID, from, to, changedBy string)
	PublishOrderReturned(ctx context.Context, ret *domain.ReturnTransaction, fullyReturned bool, returnedCost string)
	PublishTransferCreated(ctx context.Context, tx *domain.Transaction)
	PublishTransferCancelled(ctx context.Context, tx *domain.Transaction)
	PublishStockReceived(ctx context.Context, batch *domain.StockBatch)
	PublishProductionStatusChanged(ctx context.Context, productionID, from, to string, deviceCode string)
	PublishProductionFinished(ctx context.Context, productionID string, productCount int)
}

// OrderService drives the output-order state machine:
// Draft -> Order -> Delivering -> Done, with Cancel from Draft and
// returns against Done.
type OrderService struct {
	runner     domain.TxRunner
	allocator  *Allocator
	products   domain.ProductCatalog
	warehouses domain.WarehouseDirectory
	users      domain.UserDirectory
	publisher  EventPublisher
	logger     *logger.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	runner domain.TxRunner,
	allocator *Allocator,
	products domain.ProductCatalog,
	warehouses domain.WarehouseDirectory,
	users domain.UserDirectory,
	publisher EventPublisher,
	log *logger.Logger,
) *OrderService {
	return &OrderService{
		runner:     runner,
		allocator:  allocator,
		products:   products,
		warehouses: warehouses,
		users:      users,
		publisher:  publisher,
		logger:     log,
	}
}

// CreateOrderRequest creates an output order in Draft. WarehouseID may be
// omitted; the service then picks a warehouse that can cover every line.
type CreateOrderRequest struct {
	WarehouseID   *string            `json:"warehouse_id" validate:"omitempty,uuid"`
	Lines         []domain.OrderLine `json:"lines" validate:"required,min=1,dive"`
	ResponsibleID *string            `json:"responsible_id" validate:"omitempty,uuid"`
	Note          *string            `json:"note" validate:"omitempty,max=1000"`
}

// UpdateOrderLinesRequest replaces the order's lines with the given set.
type UpdateOrderLinesRequest struct {
	Lines []domain.OrderLine `json:"lines" validate:"required,min=1,dive"`
}

// ReturnLine is one returned product line.
type ReturnLine struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// ReturnOrderRequest returns some or all lines of a Done order.
type ReturnOrderRequest struct {
	Lines []ReturnLine `json:"lines" validate:"required,min=1,dive"`
	Note  *string      `json:"note" validate:"omitempty,max=1000"`
}

// resolveLines fetches and validates the products for a set of lines,
// rejecting duplicates and unknown ids.
func (s *OrderService) resolveLines(ctx context.Context, lines []domain.OrderLine) (map[string]*domain.ProductInfo, error) {
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

// pickWarehouse finds a warehouse whose aggregate inventory covers every
// line, used when the request leaves the warehouse unspecified.
func (s *OrderService) pickWarehouse(ctx context.Context, st domain.Stores, lines []domain.OrderLine, products map[string]*domain.ProductInfo) (string, error) {
	candidates, err := st.Inventory.ListByProduct(ctx, lines[0].ProductID)
	if err != nil {
		return "", err
	}

	for _, candidate := range candidates {
		covers := true
		for _, line := range lines {
			inv, err := st.Inventory.Get(ctx, candidate.WarehouseID, line.ProductID)
			if err != nil {
				if errors.Is(err, errors.ErrNotFound) {
					covers = false
					break
				}
				return "", err
			}
			if inv.Quantity < line.Quantity {
				covers = false
				break
			}
		}
		if covers {
			return candidate.WarehouseID, nil
		}
	}

	return "", errors.ConflictWithKey("stock.no_warehouse_with_stock", map[string]string{
		"product": products[lines[0].ProductID].Name,
	})
}

// CreateOrder reserves stock for every line and persists the order in
// Draft. Any line failure aborts with no rows written.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Transaction, error) {
	products, err := s.resolveLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	if req.WarehouseID != nil {
		if _, err := s.warehouses.GetByID(ctx, *req.WarehouseID); err != nil {
			return nil, err
		}
	}

	responsibleID := req.ResponsibleID
	if responsibleID == nil {
		if act := actor.FromContext(ctx); act != nil && !act.IsSystem() {
			responsibleID = &act.ID
		}
	}
	if responsibleID != nil {
		if _, err := s.users.GetByID(ctx, *responsibleID); err != nil {
			return nil, err
		}
	}

	var order *domain.Transaction
	err = s.runner.RunInTx(ctx, func(st domain.Stores) error {
		warehouseID := ""
		if req.WarehouseID != nil {
			warehouseID = *req.WarehouseID
		} else {
			picked, err := s.pickWarehouse(ctx, st, req.Lines, products)
			if err != nil {
				return err
			}
			warehouseID = picked
		}

		totalCost := decimal.Zero
		totalWeight := decimal.Zero
		details := make([]domain.TransactionDetail, 0, len(req.Lines))

		for _, line := range req.Lines {
			product := products[line.ProductID]
			if err := s.allocator.Reserve(ctx, st, warehouseID, product, line.Quantity); err != nil {
				return err
			}

			qty := decimal.NewFromInt(int64(line.Quantity))
			totalCost = totalCost.Add(product.UnitPrice.Mul(qty))
			totalWeight = totalWeight.Add(product.WeightPerUnit.Mul(qty))
			details = append(details, domain.TransactionDetail{
				ProductID:     line.ProductID,
				Quantity:      line.Quantity,
				UnitPrice:     product.UnitPrice,
				WeightPerUnit: product.WeightPerUnit,
			})
		}

		order = &domain.Transaction{
			Type:          domain.TransactionExport,
			Status:        domain.OrderStatusDraft,
			WarehouseID:   warehouseID,
			TotalCost:     totalCost,
			TotalWeight:   totalWeight,
			ResponsibleID: responsibleID,
			Note:          req.Note,
		}
		if err := st.Transactions.Create(ctx, order); err != nil {
			return err
		}
		for i := range details {
			details[i].TransactionID = order.ID
			if err := st.Transactions.CreateDetail(ctx, &details[i]); err != nil {
				return err
			}
		}
		order.Details = details
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Str("warehouse_id", order.WarehouseID).
		Int("lines", len(order.Details)).
		Msg("output order created")
	s.publisher.PublishOrderCreated(ctx, order)
	return order, nil
}

// GetOrder returns an order with its lines.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Transaction, error) {
	var order *domain.Transaction
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.Get(ctx, id)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionExport {
			return errors.NotFoundWithKey("order")
		}
		order = tx
		return nil
	})
	return order, err
}

// ListOrders lists output orders.
func (s *OrderService) ListOrders(ctx context.Context, status, warehouseID string, limit, offset int) ([]domain.Transaction, error) {
	var orders []domain.Transaction
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		var err error
		orders, err = st.Transactions.List(ctx, domain.TransactionFilter{
			Type:        domain.TransactionExport,
			Status:      status,
			WarehouseID: warehouseID,
			Limit:       limit,
			Offset:      offset,
		})
		return err
	})
	return orders, err
}

// UpdateOrderLines reconciles the stored lines against the requested set
// while the order is still editable (Draft or Order). Removed lines are
// released in full, new lines reserved, quantity changes reserved or
// released by the delta.
func (s *OrderService) UpdateOrderLines(ctx context.Context, orderID string, req UpdateOrderLinesRequest) (*domain.Transaction, error) {
	products, err := s.resolveLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	var order *domain.Transaction
	err = s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionExport {
			return errors.NotFoundWithKey("order")
		}
		if !domain.IsOrderEditable(tx.Status) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": tx.Status,
			})
		}

		requested := make(map[string]int, len(req.Lines))
		for _, line := range req.Lines {
			requested[line.ProductID] = line.Quantity
		}
		existing := make(map[string]domain.TransactionDetail, len(tx.Details))
		for _, d := range tx.Details {
			existing[d.ProductID] = d
		}

		// Removed or decreased lines first: their released stock may
		// cover increases of other lines in the same warehouse.
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
				if err := s.allocator.Release(ctx, st, tx.WarehouseID, product, detail.Quantity); err != nil {
					return err
				}
				if err := st.Transactions.DeleteDetail(ctx, detail.ID); err != nil {
					return err
				}
			case newQty < detail.Quantity:
				if err := s.allocator.Release(ctx, st, tx.WarehouseID, product, detail.Quantity-newQty); err != nil {
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
				if err := s.allocator.Reserve(ctx, st, tx.WarehouseID, product, line.Quantity); err != nil {
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
				if err := s.allocator.Reserve(ctx, st, tx.WarehouseID, product, line.Quantity-detail.Quantity); err != nil {
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
		order, err = st.Transactions.Get(ctx, tx.ID)
		return err
	})
	return order, err
}

// recomputeTotals rebuilds total_cost and total_weight from the current
// detail rows.
func (s *OrderService) recomputeTotals(ctx context.Context, st domain.Stores, transactionID string) error {
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

// ConfirmOrder moves Draft -> Order. It requires a valid responsible user
// and defensively re-checks that the lots still back the ledger for every
// line; stock was already consumed at Draft time so nothing is reserved
// again.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string, responsibleID string) (*domain.Transaction, error) {
	if _, err := s.users.GetByID(ctx, responsibleID); err != nil {
		return nil, err
	}

	var order *domain.Transaction
	var from string
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionExport {
			return errors.NotFoundWithKey("order")
		}
		from = tx.Status
		if !domain.CanOrderTransition(tx.Status, domain.OrderStatusOrder) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": domain.OrderStatusOrder,
			})
		}

		for _, detail := range tx.Details {
			if err := s.checkLedgerConsistency(ctx, st, tx.WarehouseID, detail.ProductID); err != nil {
				return err
			}
		}

		// The confirming user becomes the order's responsible; the
		// Delivering/Done transitions only accept this user.
		if err := st.Transactions.SetResponsible(ctx, tx.ID, responsibleID); err != nil {
			return err
		}
		if err := st.Transactions.UpdateStatus(ctx, tx.ID, domain.OrderStatusOrder); err != nil {
			return err
		}
		order, err = st.Transactions.Get(ctx, tx.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishOrderStatusChanged(ctx, orderID, from, domain.OrderStatusOrder, responsibleID)
	return order, nil
}

// checkLedgerConsistency verifies the aggregate equals the sum over the
// non-expired lots. A mismatch means lots and ledger desynced and the
// order must not advance.
func (s *OrderService) checkLedgerConsistency(ctx context.Context, st domain.Stores, warehouseID, productID string) error {
	available := 0
	inv, err := st.Inventory.Get(ctx, warehouseID, productID)
	if err == nil {
		available = inv.Quantity
	} else if !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	batches, err := st.Batches.ListAvailable(ctx, warehouseID, productID, s.allocator.now())
	if err != nil {
		return err
	}
	lotSum := 0
	for i := range batches {
		lotSum += batches[i].Remaining()
	}

	if lotSum < available {
		product, err := s.products.GetByID(ctx, productID)
		name := productID
		if err == nil {
			name = product.Name
		}
		return errors.ConflictWithKey("stock.insufficient_lot_coverage", map[string]string{
			"product":   name,
			"shortfall": decimal.NewFromInt(int64(available - lotSum)).String(),
		})
	}
	return nil
}

// advance moves an order along Delivering/Done with the responsible-user
// guard.
func (s *OrderService) advance(ctx context.Context, orderID, responsibleID, target string) (*domain.Transaction, error) {
	var order *domain.Transaction
	var from string
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionExport {
			return errors.NotFoundWithKey("order")
		}
		from = tx.Status
		if !domain.CanOrderTransition(tx.Status, target) {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": target,
			})
		}
		if tx.ResponsibleID == nil || *tx.ResponsibleID != responsibleID {
			return errors.ConflictWithKey("stock.not_responsible")
		}

		if err := st.Transactions.UpdateStatus(ctx, tx.ID, target); err != nil {
			return err
		}
		order, err = st.Transactions.Get(ctx, tx.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishOrderStatusChanged(ctx, orderID, from, target, responsibleID)
	return order, nil
}

// StartDelivery moves Order -> Delivering. No stock moves; consumption
// happened at reservation.
func (s *OrderService) StartDelivery(ctx context.Context, orderID, responsibleID string) (*domain.Transaction, error) {
	return s.advance(ctx, orderID, responsibleID, domain.OrderStatusDelivering)
}

// CompleteOrder moves Delivering -> Done.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, responsibleID string) (*domain.Transaction, error) {
	return s.advance(ctx, orderID, responsibleID, domain.OrderStatusDone)
}

// CancelOrder moves Draft -> Cancel, releasing every line in full.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*domain.Transaction, error) {
	var order *domain.Transaction
	var from string
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionExport {
			return errors.NotFoundWithKey("order")
		}
		from = tx.Status
		if tx.Status != domain.OrderStatusDraft {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": domain.OrderStatusCancel,
			})
		}

		for _, detail := range tx.Details {
			product, err := s.products.GetByID(ctx, detail.ProductID)
			if err != nil {
				return err
			}
			if err := s.allocator.Release(ctx, st, tx.WarehouseID, product, detail.Quantity); err != nil {
				return err
			}
		}

		if err := st.Transactions.UpdateStatus(ctx, tx.ID, domain.OrderStatusCancel); err != nil {
			return err
		}
		order, err = st.Transactions.Get(ctx, tx.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	changedBy := ""
	if act := actor.FromContext(ctx); act != nil {
		changedBy = act.ID
	}
	s.publisher.PublishOrderStatusChanged(ctx, orderID, from, domain.OrderStatusCancel, changedBy)
	return order, nil
}

// ListOrderReturns lists the return audit rows recorded against an order.
func (s *OrderService) ListOrderReturns(ctx context.Context, orderID string) ([]domain.ReturnTransaction, error) {
	var returns []domain.ReturnTransaction
	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionExport {
			return errors.NotFoundWithKey("order")
		}
		returns, err = st.Returns.ListByTransaction(ctx, orderID)
		return err
	})
	return returns, err
}

// ReturnOrder processes a return against a Done order. Each returned line
// is released back to stock, the detail shrinks or disappears, totals are
// reduced, and an audit ReturnTransaction is written. When every line
// ends fully returned the order flips to Cancel.
func (s *OrderService) ReturnOrder(ctx context.Context, orderID string, req ReturnOrderRequest) (*domain.ReturnTransaction, error) {
	var ret *domain.ReturnTransaction
	var fullyReturned bool
	returnedCost := decimal.Zero

	err := s.runner.RunInTx(ctx, func(st domain.Stores) error {
		tx, err := st.Transactions.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionExport {
			return errors.NotFoundWithKey("order")
		}
		if tx.Status != domain.OrderStatusDone {
			return errors.ConflictWithKey("stock.invalid_transition", map[string]string{
				"from": tx.Status, "to": "Returned",
			})
		}

		details := make(map[string]domain.TransactionDetail, len(tx.Details))
		for _, d := range tx.Details {
			details[d.ProductID] = d
		}

		returnDetails := make([]domain.ReturnTransactionDetail, 0, len(req.Lines))
		for _, line := range req.Lines {
			detail, ok := details[line.ProductID]
			if !ok {
				product, perr := s.products.GetByID(ctx, line.ProductID)
				name := line.ProductID
				if perr == nil {
					name = product.Name
				}
				return errors.ConflictWithKey("stock.line_not_found", map[string]string{
					"product": name,
				})
			}
			if line.Quantity <= 0 || line.Quantity > detail.Quantity {
				product, perr := s.products.GetByID(ctx, line.ProductID)
				name := line.ProductID
				if perr == nil {
					name = product.Name
				}
				return errors.ConflictWithKey("stock.return_exceeds_line", map[string]string{
					"product": name,
					"limit":   decimal.NewFromInt(int64(detail.Quantity)).String(),
				})
			}

			product, err := s.products.GetByID(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if err := s.allocator.Release(ctx, st, tx.WarehouseID, product, line.Quantity); err != nil {
				return err
			}

			if line.Quantity == detail.Quantity {
				if err := st.Transactions.DeleteDetail(ctx, detail.ID); err != nil {
					return err
				}
			} else {
				if err := st.Transactions.UpdateDetailQuantity(ctx, detail.ID, detail.Quantity-line.Quantity); err != nil {
					return err
				}
			}

			returnedCost = returnedCost.Add(detail.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			returnDetails = append(returnDetails, domain.ReturnTransactionDetail{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: detail.UnitPrice,
			})
		}

		var responsibleID *string
		if act := actor.FromContext(ctx); act != nil && !act.IsSystem() {
			responsibleID = &act.ID
		}
		ret = &domain.ReturnTransaction{
			TransactionID: tx.ID,
			ResponsibleID: responsibleID,
			Note:          req.Note,
			Details:       returnDetails,
		}
		if err := st.Returns.Create(ctx, ret); err != nil {
			return err
		}

		if err := s.recomputeTotals(ctx, st, tx.ID); err != nil {
			return err
		}

		remaining, err := st.Transactions.ListDetails(ctx, tx.ID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			fullyReturned = true
			return st.Transactions.UpdateStatus(ctx, tx.ID, domain.OrderStatusCancel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishOrderReturned(ctx, ret, fullyReturned, returnedCost.String())
	return ret, nil
}
