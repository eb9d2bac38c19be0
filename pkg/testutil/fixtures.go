package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductFixture represents test product data
type ProductFixture struct {
	ID            string
	Name          string
	SKU           string
	Unit          string
	UnitPrice     decimal.Decimal
	WeightPerUnit decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
}

// WarehouseFixture represents test warehouse data
type WarehouseFixture struct {
	ID        string
	Name      string
	Address   string
	IsActive  bool
	CreatedAt time.Time
}

// BatchFixture represents a received stock lot
type BatchFixture struct {
	ID          string
	WarehouseID string
	ProductID   string
	QuantityIn  int
	QuantityOut int
	ImportDate  time.Time
	ExpireDate  *time.Time
}

// EmployeeFixture represents a cached user from the user service
type EmployeeFixture struct {
	UserID   string
	FullName string
	Email    string
	RoleName string
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*ProductFixture)) ProductFixture {
	seq := f.nextSeq()

	product := ProductFixture{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("Sản phẩm %d", seq),
		SKU:           fmt.Sprintf("SKU-%04d", seq),
		Unit:          "cái",
		UnitPrice:     decimal.NewFromInt(10000),
		WeightPerUnit: decimal.NewFromFloat(0.5),
		IsActive:      true,
		CreatedAt:     time.Now(),
	}

	for _, opt := range opts {
		opt(&product)
	}

	return product
}

// WithProductName sets the product name
func WithProductName(name string) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.Name = name
	}
}

// WithSKU sets the product SKU
func WithSKU(sku string) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.SKU = sku
	}
}

// WithUnitPrice sets the product unit price
func WithUnitPrice(price decimal.Decimal) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.UnitPrice = price
	}
}

// Warehouse creates a warehouse fixture with defaults
func (f *FixtureFactory) Warehouse(opts ...func(*WarehouseFixture)) WarehouseFixture {
	seq := f.nextSeq()

	warehouse := WarehouseFixture{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Kho %d", seq),
		Address:   "Khu công nghiệp Tân Bình",
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&warehouse)
	}

	return warehouse
}

// WithWarehouseName sets the warehouse name
func WithWarehouseName(name string) func(*WarehouseFixture) {
	return func(w *WarehouseFixture) {
		w.Name = name
	}
}

// Batch creates a stock batch fixture. Successive calls produce strictly
// increasing import dates so FIFO ordering in tests is deterministic.
func (f *FixtureFactory) Batch(warehouseID, productID string, quantity int, opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()

	batch := BatchFixture{
		ID:          uuid.New().String(),
		WarehouseID: warehouseID,
		ProductID:   productID,
		QuantityIn:  quantity,
		QuantityOut: 0,
		ImportDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * 24 * time.Hour),
	}

	for _, opt := range opts {
		opt(&batch)
	}

	return batch
}

// WithImportDate sets the batch import date
func WithImportDate(t time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ImportDate = t
	}
}

// WithExpireDate sets the batch expire date
func WithExpireDate(t time.Time) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.ExpireDate = &t
	}
}

// WithQuantityOut sets how much of the batch has already been consumed
func WithQuantityOut(qty int) func(*BatchFixture) {
	return func(b *BatchFixture) {
		b.QuantityOut = qty
	}
}

// Employee creates an employee cache fixture with defaults
func (f *FixtureFactory) Employee(opts ...func(*EmployeeFixture)) EmployeeFixture {
	seq := f.nextSeq()

	emp := EmployeeFixture{
		UserID:   uuid.New().String(),
		FullName: fmt.Sprintf("Nhân viên %d", seq),
		Email:    fmt.Sprintf("employee%d@stockflow.local", seq),
		RoleName: "staff",
	}

	for _, opt := range opts {
		opt(&emp)
	}

	return emp
}

// WithEmployeeName sets the employee's full name
func WithEmployeeName(name string) func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		e.FullName = name
	}
}

// WithRoleName sets the employee's role
func WithRoleName(role string) func(*EmployeeFixture) {
	return func(e *EmployeeFixture) {
		e.RoleName = role
	}
}
