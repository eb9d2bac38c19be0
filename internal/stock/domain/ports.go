package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InventoryStore persists the aggregate quantity per (warehouse, product).
type InventoryStore interface {
	Get(ctx context.Context, warehouseID, productID string) (*Inventory, error)

	// GetForUpdate locks the inventory row for the rest of the
	// transaction. All mutations of a (warehouse, product) key go through
	// this lock so concurrent reservations serialize.
	GetForUpdate(ctx context.Context, warehouseID, productID string) (*Inventory, error)

	// AdjustQuantity adds delta (possibly negative) to the row, creating
	// it at zero first if absent. The non-negative CHECK constraint is the
	// final guard against oversell.
	AdjustQuantity(ctx context.Context, warehouseID, productID string, delta int) error

	ListByWarehouse(ctx context.Context, warehouseID string) ([]WarehouseStock, error)
	ListByProduct(ctx context.Context, productID string) ([]Inventory, error)
}

// BatchStore persists stock lots.
type BatchStore interface {
	// ListAvailable returns lots with remaining quantity that are not
	// expired at now, ordered by import_date then id ascending (FIFO).
	ListAvailable(ctx context.Context, warehouseID, productID string, now time.Time) ([]StockBatch, error)

	// ListConsumed returns lots with quantity_out > 0 ordered by
	// import_date then id descending, for LIFO release.
	ListConsumed(ctx context.Context, warehouseID, productID string) ([]StockBatch, error)

	// ApplyConsumption adds delta to a batch's quantity_out. Negative
	// delta is a release. The quantity_out_lte_in CHECK backs this.
	ApplyConsumption(ctx context.Context, batchID string, delta int) error

	Create(ctx context.Context, batch *StockBatch) error
	Delete(ctx context.Context, batchID string) error

	// GetByOriginTransfer finds the destination lot a transfer created
	// for a product, for transfer updates and cancellation.
	GetByOriginTransfer(ctx context.Context, transferID, productID string) (*StockBatch, error)

	// AddQuantityIn grows an existing lot, used when a transfer update
	// increases a line that already has a destination lot.
	AddQuantityIn(ctx context.Context, batchID string, delta int) error

	ListExpiring(ctx context.Context, warehouseID string, before time.Time) ([]StockBatch, error)
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	Type        TransactionType
	Status      string
	WarehouseID string
	Limit       int
	Offset      int
}

// TransactionStore persists output orders and transfers with their lines.
type TransactionStore interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)

	// GetForUpdate locks the transaction row so concurrent status
	// transitions on the same order serialize.
	GetForUpdate(ctx context.Context, id string) (*Transaction, error)

	UpdateStatus(ctx context.Context, id, status string) error

	// SetResponsible pins the responsible user on the transaction.
	// Confirmation records who took the order; later transitions check
	// against this value.
	SetResponsible(ctx context.Context, id, responsibleID string) error

	UpdateTotals(ctx context.Context, id string, totalCost, totalWeight decimal.Decimal) error
	List(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	CreateDetail(ctx context.Context, detail *TransactionDetail) error
	UpdateDetailQuantity(ctx context.Context, detailID string, quantity int) error
	DeleteDetail(ctx context.Context, detailID string) error
	ListDetails(ctx context.Context, transactionID string) ([]TransactionDetail, error)
}

// ReturnStore persists return audit rows.
type ReturnStore interface {
	Create(ctx context.Context, ret *ReturnTransaction) error
	ListByTransaction(ctx context.Context, transactionID string) ([]ReturnTransaction, error)
}

// ProductionStore persists production orders, their consumed materials and
// finished-goods lines.
type ProductionStore interface {
	Create(ctx context.Context, order *ProductionOrder) error
	Get(ctx context.Context, id string) (*ProductionOrder, error)
	GetForUpdate(ctx context.Context, id string) (*ProductionOrder, error)
	UpdateStatus(ctx context.Context, id, status string) error
	List(ctx context.Context, status string, limit, offset int) ([]ProductionOrder, error)

	// GetProcessing returns the order currently Processing, or nil.
	GetProcessing(ctx context.Context) (*ProductionOrder, error)

	AddMaterial(ctx context.Context, m *ProductionMaterial) error
	ListMaterials(ctx context.Context, productionID string) ([]ProductionMaterial, error)

	AddFinishProduct(ctx context.Context, fp *FinishProduct) error
	ListFinishProducts(ctx context.Context, productionID string) ([]FinishProduct, error)
}

// DeviceStore persists IoT device bindings.
type DeviceStore interface {
	Get(ctx context.Context, deviceCode string) (*IoTDevice, error)

	// Bind sets current_production_id on the device only if it is
	// currently unbound. Returns ErrNotFound-style semantics through the
	// repository; a zero-row update means the device is busy.
	Bind(ctx context.Context, deviceCode, productionID string) error

	// Unbind clears the binding for a production order.
	Unbind(ctx context.Context, productionID string) error
}

// Stores bundles every store bound to one database transaction.
type Stores struct {
	Inventory    InventoryStore
	Batches      BatchStore
	Transactions TransactionStore
	Returns      ReturnStore
	Production   ProductionStore
	Devices      DeviceStore
}

// TxRunner runs a function with transaction-bound stores. The whole
// function commits or rolls back as a unit; lifecycle operations perform
// all their mutations inside one RunInTx call.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(s Stores) error) error
}

// ProductInfo is the slice of the catalog the stock domain needs.
type ProductInfo struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	WeightPerUnit decimal.Decimal `json:"weight_per_unit"`
	IsActive      bool            `json:"is_active"`
}

// WarehouseInfo is the slice of the warehouse directory the stock domain
// needs.
type WarehouseInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// EmployeeInfo identifies a responsible user, resolved from the local
// employee cache maintained off user.events.
type EmployeeInfo struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	RoleName string `json:"role_name"`
}

// ProductCatalog resolves products by id.
type ProductCatalog interface {
	GetByID(ctx context.Context, id string) (*ProductInfo, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*ProductInfo, error)
}

// WarehouseDirectory resolves warehouses by id.
type WarehouseDirectory interface {
	GetByID(ctx context.Context, id string) (*WarehouseInfo, error)
	List(ctx context.Context) ([]WarehouseInfo, error)
}

// UserDirectory resolves responsible users by id.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*EmployeeInfo, error)
}
