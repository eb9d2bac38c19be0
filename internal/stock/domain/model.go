// Package domain holds the stock entities, the lifecycle status machines
// and the persistence ports. Services depend on this package only; the
// sqlx implementations live in internal/stock/repository.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes output (sales) orders from inter-warehouse
// transfers. Both share the transactions table.
type TransactionType string

const (
	TransactionExport   TransactionType = "Export"
	TransactionTransfer TransactionType = "Transfer"
)

// Inventory is the cached aggregate quantity per (warehouse, product).
// It must always equal the sum of (quantity_in - quantity_out) over the
// non-expired batches of the same key.
type Inventory struct {
	WarehouseID string    `json:"warehouse_id" db:"warehouse_id"`
	ProductID   string    `json:"product_id" db:"product_id"`
	Quantity    int       `json:"quantity" db:"quantity"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// StockBatch is one received lot. Consumption never mutates quantity_in;
// it only advances quantity_out.
type StockBatch struct {
	ID               string     `json:"id" db:"id"`
	WarehouseID      string     `json:"warehouse_id" db:"warehouse_id"`
	ProductID        string     `json:"product_id" db:"product_id"`
	QuantityIn       int        `json:"quantity_in" db:"quantity_in"`
	QuantityOut      int        `json:"quantity_out" db:"quantity_out"`
	ImportDate       time.Time  `json:"import_date" db:"import_date"`
	ExpireDate       *time.Time `json:"expire_date,omitempty" db:"expire_date"`
	OriginTransferID *string    `json:"origin_transfer_id,omitempty" db:"origin_transfer_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Remaining returns the quantity still available in the lot.
func (b *StockBatch) Remaining() int {
	return b.QuantityIn - b.QuantityOut
}

// IsExpired reports whether the lot is past its expiry at the given time.
// Lots without an expiry date never expire.
func (b *StockBatch) IsExpired(now time.Time) bool {
	return b.ExpireDate != nil && !b.ExpireDate.After(now)
}

// Transaction is an output order or a transfer order. WarehouseID is the
// source warehouse; WarehouseInID is set for transfers only.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	Type          TransactionType `json:"type" db:"type"`
	Status        string          `json:"status" db:"status"`
	WarehouseID   string          `json:"warehouse_id" db:"warehouse_id"`
	WarehouseInID *string         `json:"warehouse_in_id,omitempty" db:"warehouse_in_id"`
	TotalCost     decimal.Decimal `json:"total_cost" db:"total_cost"`
	TotalWeight   decimal.Decimal `json:"total_weight" db:"total_weight"`
	ResponsibleID *string         `json:"responsible_id,omitempty" db:"responsible_id"`
	Note          *string         `json:"note,omitempty" db:"note"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`

	Details []TransactionDetail `json:"details,omitempty" db:"-"`
}

// TransactionDetail is one product line of a transaction. UnitPrice and
// WeightPerUnit are frozen at creation time so later catalog edits do not
// rewrite history.
type TransactionDetail struct {
	ID            string          `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	ProductID     string          `json:"product_id" db:"product_id"`
	Quantity      int             `json:"quantity" db:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price" db:"unit_price"`
	WeightPerUnit decimal.Decimal `json:"weight_per_unit" db:"weight_per_unit"`
}

// LineCost returns unit_price * quantity for the line.
func (d *TransactionDetail) LineCost() decimal.Decimal {
	return d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// LineWeight returns weight_per_unit * quantity for the line.
func (d *TransactionDetail) LineWeight() decimal.Decimal {
	return d.WeightPerUnit.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// ReturnTransaction is the audit record of a (partial) return against a
// Done output order.
type ReturnTransaction struct {
	ID            string    `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	ResponsibleID *string   `json:"responsible_id,omitempty" db:"responsible_id"`
	Note          *string   `json:"note,omitempty" db:"note"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`

	Details []ReturnTransactionDetail `json:"details,omitempty" db:"-"`
}

// ReturnTransactionDetail is one returned product line.
type ReturnTransactionDetail struct {
	ID        string          `json:"id" db:"id"`
	ReturnID  string          `json:"return_id" db:"return_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// ProductionOrder is a manufacturing order. It consumes the raw material
// line at Processing time and books finished goods into stock at Finished.
type ProductionOrder struct {
	ID                  string    `json:"id" db:"id"`
	Status              string    `json:"status" db:"status"`
	MaterialProductID   string    `json:"material_product_id" db:"material_product_id"`
	MaterialQuantity    int       `json:"material_quantity" db:"material_quantity"`
	MaterialWarehouseID *string   `json:"material_warehouse_id,omitempty" db:"material_warehouse_id"`
	ResponsibleID       string    `json:"responsible_id" db:"responsible_id"`
	Note                *string   `json:"note,omitempty" db:"note"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`

	FinishProducts []FinishProduct `json:"finish_products,omitempty" db:"-"`
	DeviceCode     *string         `json:"device_code,omitempty" db:"-"`
}

// ProductionMaterial records what was actually consumed, and from which
// warehouse, when the order entered Processing.
type ProductionMaterial struct {
	ID           string `json:"id" db:"id"`
	ProductionID string `json:"production_id" db:"production_id"`
	ProductID    string `json:"product_id" db:"product_id"`
	Quantity     int    `json:"quantity" db:"quantity"`
	WarehouseID  string `json:"warehouse_id" db:"warehouse_id"`
}

// FinishProduct is one finished-goods line of a production order, with the
// warehouse the output goes to.
type FinishProduct struct {
	ID           string `json:"id" db:"id"`
	ProductionID string `json:"production_id" db:"production_id"`
	ProductID    string `json:"product_id" db:"product_id"`
	Quantity     int    `json:"quantity" db:"quantity"`
	WarehouseID  string `json:"warehouse_id" db:"warehouse_id"`
}

// IoTDevice is a physical production device. CurrentProductionID binds the
// device exclusively to one active production order.
type IoTDevice struct {
	DeviceCode          string    `json:"device_code" db:"device_code"`
	Name                *string   `json:"name,omitempty" db:"name"`
	CurrentProductionID *string   `json:"current_production_id,omitempty" db:"current_production_id"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// OrderLine is the request shape for order and transfer lines.
type OrderLine struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// WarehouseStock is a reporting row: one product's aggregate quantity in a
// warehouse, joined with catalog names.
type WarehouseStock struct {
	WarehouseID string `json:"warehouse_id" db:"warehouse_id"`
	ProductID   string `json:"product_id" db:"product_id"`
	ProductName string `json:"product_name" db:"product_name"`
	Quantity    int    `json:"quantity" db:"quantity"`
}
