package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// User events (consumed from the company SSO/user service)
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"

	// Stock events
	EventOrderCreated       = "stock.order.created"
	EventOrderStatusChanged = "stock.order.status_changed"
	EventOrderReturned      = "stock.order.returned"
	EventTransferCreated    = "stock.transfer.created"
	EventTransferCancelled  = "stock.transfer.cancelled"
	EventStockReceived      = "stock.received"

	// Production events
	EventProductionStatusChanged = "production.status_changed"
	EventProductionFinished      = "production.finished"
)

// Exchange names
const (
	ExchangeUserEvents       = "user.events"
	ExchangeStockEvents      = "stock.events"
	ExchangeProductionEvents = "production.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// User Events

// UserCreatedEvent is published by the user service when an account is created
type UserCreatedEvent struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	RoleName string `json:"role_name"`
}

// UserUpdatedEvent is published by the user service when an account changes
type UserUpdatedEvent struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	RoleName string `json:"role_name"`
}

// UserDeletedEvent is published by the user service when an account is removed
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// Stock Events

// OrderCreatedEvent is published when an output order is created
type OrderCreatedEvent struct {
	OrderID       string `json:"order_id"`
	WarehouseID   string `json:"warehouse_id"`
	ResponsibleID string `json:"responsible_id"`
	LineCount     int    `json:"line_count"`
	TotalCost     string `json:"total_cost"`
}

// OrderStatusChangedEvent is published on every order state transition
type OrderStatusChangedEvent struct {
	OrderID    string `json:"order_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ChangedBy  string `json:"changed_by"`
}

// OrderReturnedEvent is published when order lines are returned
type OrderReturnedEvent struct {
	OrderID       string `json:"order_id"`
	ReturnID      string `json:"return_id"`
	LineCount     int    `json:"line_count"`
	FullyReturned bool   `json:"fully_returned"`
	ReturnedCost  string `json:"returned_cost"`
}

// TransferCreatedEvent is published when an inter-warehouse transfer is created
type TransferCreatedEvent struct {
	TransferID      string `json:"transfer_id"`
	SourceWarehouse string `json:"source_warehouse"`
	DestWarehouse   string `json:"dest_warehouse"`
	LineCount       int    `json:"line_count"`
}

// TransferCancelledEvent is published when an in-transit transfer is reverted
type TransferCancelledEvent struct {
	TransferID      string `json:"transfer_id"`
	SourceWarehouse string `json:"source_warehouse"`
	DestWarehouse   string `json:"dest_warehouse"`
}

// StockReceivedEvent is published when a goods receipt creates a new lot
type StockReceivedEvent struct {
	BatchID     string `json:"batch_id"`
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
}

// Production Events

// ProductionStatusChangedEvent is published on every production state transition
type ProductionStatusChangedEvent struct {
	ProductionID string `json:"production_id"`
	FromStatus   string `json:"from_status"`
	ToStatus     string `json:"to_status"`
	DeviceCode   string `json:"device_code,omitempty"`
}

// ProductionFinishedEvent is published when finished goods enter stock
type ProductionFinishedEvent struct {
	ProductionID string `json:"production_id"`
	ProductCount int    `json:"product_count"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
