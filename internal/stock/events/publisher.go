// Package events publishes stock and production domain events to RabbitMQ.
// Publishing is best-effort: a broker failure is logged, never surfaced to
// the caller, because the database transaction has already committed.
package events

import (
	"context"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
)

// StockEventPublisher publishes stock lifecycle events
type StockEventPublisher struct {
	stock      *messaging.Publisher
	production *messaging.Publisher
	logger     *logger.Logger
}

// NewStockEventPublisher creates publishers on the stock and production
// exchanges.
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	stock, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}
	production, err := messaging.NewPublisher(rmq, messaging.ExchangeProductionEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		stock:      stock,
		production: production,
		logger:     log,
	}, nil
}

// PublishOrderCreated publishes an order created event
func (p *StockEventPublisher) PublishOrderCreated(ctx context.Context, tx *domain.Transaction) {
	responsible := ""
	if tx.ResponsibleID != nil {
		responsible = *tx.ResponsibleID
	}

	data := messaging.OrderCreatedEvent{
		OrderID:       tx.ID,
		WarehouseID:   tx.WarehouseID,
		ResponsibleID: responsible,
		LineCount:     len(tx.Details),
		TotalCost:     tx.TotalCost.String(),
	}

	if err := p.stock.Publish(ctx, messaging.EventOrderCreated, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", tx.ID).Msg("failed to publish order created event")
	}
}

// PublishOrderStatusChanged publishes an order status transition
func (p *StockEventPublisher) PublishOrderStatusChanged(ctx context.Context, orderID, from, to, changedBy string) {
	data := messaging.OrderStatusChangedEvent{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  changedBy,
	}

	if err := p.stock.Publish(ctx, messaging.EventOrderStatusChanged, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to publish order status event")
	}
}

// PublishOrderReturned publishes a return against a done order
func (p *StockEventPublisher) PublishOrderReturned(ctx context.Context, ret *domain.ReturnTransaction, fullyReturned bool, returnedCost string) {
	data := messaging.OrderReturnedEvent{
		OrderID:       ret.TransactionID,
		ReturnID:      ret.ID,
		LineCount:     len(ret.Details),
		FullyReturned: fullyReturned,
		ReturnedCost:  returnedCost,
	}

	if err := p.stock.Publish(ctx, messaging.EventOrderReturned, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", ret.TransactionID).Msg("failed to publish order returned event")
	}
}

// PublishTransferCreated publishes a transfer created event
func (p *StockEventPublisher) PublishTransferCreated(ctx context.Context, tx *domain.Transaction) {
	dest := ""
	if tx.WarehouseInID != nil {
		dest = *tx.WarehouseInID
	}

	data := messaging.TransferCreatedEvent{
		TransferID:      tx.ID,
		SourceWarehouse: tx.WarehouseID,
		DestWarehouse:   dest,
		LineCount:       len(tx.Details),
	}

	if err := p.stock.Publish(ctx, messaging.EventTransferCreated, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", tx.ID).Msg("failed to publish transfer created event")
	}
}

// PublishTransferCancelled publishes a transfer cancellation
func (p *StockEventPublisher) PublishTransferCancelled(ctx context.Context, tx *domain.Transaction) {
	dest := ""
	if tx.WarehouseInID != nil {
		dest = *tx.WarehouseInID
	}

	data := messaging.TransferCancelledEvent{
		TransferID:      tx.ID,
		SourceWarehouse: tx.WarehouseID,
		DestWarehouse:   dest,
	}

	if err := p.stock.Publish(ctx, messaging.EventTransferCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", tx.ID).Msg("failed to publish transfer cancelled event")
	}
}

// PublishStockReceived publishes a goods receipt
func (p *StockEventPublisher) PublishStockReceived(ctx context.Context, batch *domain.StockBatch) {
	data := messaging.StockReceivedEvent{
		BatchID:     batch.ID,
		WarehouseID: batch.WarehouseID,
		ProductID:   batch.ProductID,
		Quantity:    batch.QuantityIn,
	}

	if err := p.stock.Publish(ctx, messaging.EventStockReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish stock received event")
	}
}

// PublishProductionStatusChanged publishes a production status transition
func (p *StockEventPublisher) PublishProductionStatusChanged(ctx context.Context, productionID, from, to string, deviceCode string) {
	data := messaging.ProductionStatusChangedEvent{
		ProductionID: productionID,
		FromStatus:   from,
		ToStatus:     to,
		DeviceCode:   deviceCode,
	}

	if err := p.production.Publish(ctx, messaging.EventProductionStatusChanged, data); err != nil {
		p.logger.Error().Err(err).Str("production_id", productionID).Msg("failed to publish production status event")
	}
}

// PublishProductionFinished publishes a production completion
func (p *StockEventPublisher) PublishProductionFinished(ctx context.Context, productionID string, productCount int) {
	data := messaging.ProductionFinishedEvent{
		ProductionID: productionID,
		ProductCount: productCount,
	}

	if err := p.production.Publish(ctx, messaging.EventProductionFinished, data); err != nil {
		p.logger.Error().Err(err).Str("production_id", productionID).Msg("failed to publish production finished event")
	}
}
