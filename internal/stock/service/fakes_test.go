package service_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// memStore is an in-memory implementation of every store port with the
// same error semantics as the PostgreSQL repositories, including the
// check-constraint conflicts. The fake TxRunner snapshots state before
// each unit of work and restores it on error, mirroring rollback.
type memStore struct {
	inventory    map[string]*domain.Inventory // key: warehouseID|productID
	batches      map[string]*domain.StockBatch
	transactions map[string]*domain.Transaction
	details      map[string]*domain.TransactionDetail
	returns      []*domain.ReturnTransaction
	productions  map[string]*domain.ProductionOrder
	materials    []*domain.ProductionMaterial
	finished     map[string][]*domain.FinishProduct // key: productionID
	devices      map[string]*domain.IoTDevice
	productNames map[string]string
	seq          int
}

func newMemStore() *memStore {
	return &memStore{
		inventory:    map[string]*domain.Inventory{},
		batches:      map[string]*domain.StockBatch{},
		transactions: map[string]*domain.Transaction{},
		details:      map[string]*domain.TransactionDetail{},
		productions:  map[string]*domain.ProductionOrder{},
		finished:     map[string][]*domain.FinishProduct{},
		devices:      map[string]*domain.IoTDevice{},
		productNames: map[string]string{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%04d", prefix, m.seq)
}

func invKey(warehouseID, productID string) string {
	return warehouseID + "|" + productID
}

func (m *memStore) stores() domain.Stores {
	return domain.Stores{
		Inventory:    (*memInventory)(wrap(m)),
		Batches:      (*memBatches)(wrap(m)),
		Transactions: (*memTransactions)(wrap(m)),
		Returns:      (*memReturns)(wrap(m)),
		Production:   (*memProduction)(wrap(m)),
		Devices:      (*memDevices)(wrap(m)),
	}
}

type storeRef struct{ m *memStore }

func wrap(m *memStore) *storeRef { return &storeRef{m: m} }

// snapshot deep-copies the mutable state.
func (m *memStore) snapshot() *memStore {
	cp := newMemStore()
	cp.seq = m.seq
	cp.productNames = m.productNames
	for k, v := range m.inventory {
		c := *v
		cp.inventory[k] = &c
	}
	for k, v := range m.batches {
		c := *v
		cp.batches[k] = &c
	}
	for k, v := range m.transactions {
		c := *v
		cp.transactions[k] = &c
	}
	for k, v := range m.details {
		c := *v
		cp.details[k] = &c
	}
	cp.returns = append(cp.returns, m.returns...)
	for k, v := range m.productions {
		c := *v
		cp.productions[k] = &c
	}
	cp.materials = append(cp.materials, m.materials...)
	for k, v := range m.finished {
		cp.finished[k] = append([]*domain.FinishProduct{}, v...)
	}
	for k, v := range m.devices {
		c := *v
		cp.devices[k] = &c
	}
	return cp
}

func (m *memStore) restore(snap *memStore) {
	m.inventory = snap.inventory
	m.batches = snap.batches
	m.transactions = snap.transactions
	m.details = snap.details
	m.returns = snap.returns
	m.productions = snap.productions
	m.materials = snap.materials
	m.finished = snap.finished
	m.devices = snap.devices
	m.seq = snap.seq
}

// fakeRunner implements domain.TxRunner with rollback-on-error.
type fakeRunner struct{ m *memStore }

func (r *fakeRunner) RunInTx(ctx context.Context, fn func(s domain.Stores) error) error {
	snap := r.m.snapshot()
	if err := fn(r.m.stores()); err != nil {
		r.m.restore(snap)
		return err
	}
	return nil
}

// InventoryStore

type memInventory storeRef

func (s *memInventory) Get(ctx context.Context, warehouseID, productID string) (*domain.Inventory, error) {
	inv, ok := s.m.inventory[invKey(warehouseID, productID)]
	if !ok {
		return nil, errors.NotFound("inventory")
	}
	c := *inv
	return &c, nil
}

func (s *memInventory) GetForUpdate(ctx context.Context, warehouseID, productID string) (*domain.Inventory, error) {
	return s.Get(ctx, warehouseID, productID)
}

func (s *memInventory) AdjustQuantity(ctx context.Context, warehouseID, productID string, delta int) error {
	key := invKey(warehouseID, productID)
	inv, ok := s.m.inventory[key]
	if !ok {
		inv = &domain.Inventory{WarehouseID: warehouseID, ProductID: productID}
		s.m.inventory[key] = inv
	}
	if inv.Quantity+delta < 0 {
		return errors.Conflict("inventory quantity cannot go negative")
	}
	inv.Quantity += delta
	return nil
}

func (s *memInventory) ListByWarehouse(ctx context.Context, warehouseID string) ([]domain.WarehouseStock, error) {
	var rows []domain.WarehouseStock
	for _, inv := range s.m.inventory {
		if inv.WarehouseID == warehouseID && inv.Quantity > 0 {
			rows = append(rows, domain.WarehouseStock{
				WarehouseID: inv.WarehouseID,
				ProductID:   inv.ProductID,
				ProductName: s.m.productNames[inv.ProductID],
				Quantity:    inv.Quantity,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductID < rows[j].ProductID })
	return rows, nil
}

func (s *memInventory) ListByProduct(ctx context.Context, productID string) ([]domain.Inventory, error) {
	var rows []domain.Inventory
	for _, inv := range s.m.inventory {
		if inv.ProductID == productID && inv.Quantity > 0 {
			rows = append(rows, *inv)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Quantity > rows[j].Quantity })
	return rows, nil
}

// BatchStore

type memBatches storeRef

func (s *memBatches) ListAvailable(ctx context.Context, warehouseID, productID string, now time.Time) ([]domain.StockBatch, error) {
	var out []domain.StockBatch
	for _, b := range s.m.batches {
		if b.WarehouseID == warehouseID && b.ProductID == productID &&
			b.Remaining() > 0 && !b.IsExpired(now) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ImportDate.Equal(out[j].ImportDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].ImportDate.Before(out[j].ImportDate)
	})
	return out, nil
}

func (s *memBatches) ListConsumed(ctx context.Context, warehouseID, productID string) ([]domain.StockBatch, error) {
	var out []domain.StockBatch
	for _, b := range s.m.batches {
		if b.WarehouseID == warehouseID && b.ProductID == productID && b.QuantityOut > 0 {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ImportDate.Equal(out[j].ImportDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].ImportDate.After(out[j].ImportDate)
	})
	return out, nil
}

func (s *memBatches) ApplyConsumption(ctx context.Context, batchID string, delta int) error {
	b, ok := s.m.batches[batchID]
	if !ok {
		return errors.NotFound("stock_batch")
	}
	next := b.QuantityOut + delta
	if next < 0 || next > b.QuantityIn {
		return errors.Conflict("stock batch consumption exceeds received quantity")
	}
	b.QuantityOut = next
	return nil
}

func (s *memBatches) Create(ctx context.Context, batch *domain.StockBatch) error {
	if batch.ID == "" {
		batch.ID = s.m.nextID("batch")
	}
	if batch.ImportDate.IsZero() {
		batch.ImportDate = time.Now().UTC()
	}
	c := *batch
	s.m.batches[batch.ID] = &c
	return nil
}

func (s *memBatches) Delete(ctx context.Context, batchID string) error {
	delete(s.m.batches, batchID)
	return nil
}

func (s *memBatches) GetByOriginTransfer(ctx context.Context, transferID, productID string) (*domain.StockBatch, error) {
	for _, b := range s.m.batches {
		if b.OriginTransferID != nil && *b.OriginTransferID == transferID && b.ProductID == productID {
			c := *b
			return &c, nil
		}
	}
	return nil, errors.NotFound("stock_batch")
}

func (s *memBatches) AddQuantityIn(ctx context.Context, batchID string, delta int) error {
	b, ok := s.m.batches[batchID]
	if !ok {
		return errors.NotFound("stock_batch")
	}
	next := b.QuantityIn + delta
	if next <= 0 || b.QuantityOut > next {
		return errors.Conflict("stock batch consumption exceeds received quantity")
	}
	b.QuantityIn = next
	return nil
}

func (s *memBatches) ListExpiring(ctx context.Context, warehouseID string, before time.Time) ([]domain.StockBatch, error) {
	var out []domain.StockBatch
	for _, b := range s.m.batches {
		if b.WarehouseID == warehouseID && b.ExpireDate != nil &&
			!b.ExpireDate.After(before) && b.Remaining() > 0 {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpireDate.Before(*out[j].ExpireDate) })
	return out, nil
}

// TransactionStore

type memTransactions storeRef

func (s *memTransactions) Create(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = s.m.nextID("tx")
	}
	tx.CreatedAt = time.Now().UTC()
	tx.UpdatedAt = tx.CreatedAt
	c := *tx
	c.Details = nil
	s.m.transactions[tx.ID] = &c
	return nil
}

func (s *memTransactions) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, ok := s.m.transactions[id]
	if !ok {
		return nil, errors.NotFound("transaction")
	}
	c := *tx
	details, _ := s.ListDetails(ctx, id)
	c.Details = details
	return &c, nil
}

func (s *memTransactions) GetForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.Get(ctx, id)
}

func (s *memTransactions) UpdateStatus(ctx context.Context, id, status string) error {
	tx, ok := s.m.transactions[id]
	if !ok {
		return errors.NotFound("transaction")
	}
	tx.Status = status
	return nil
}

func (s *memTransactions) SetResponsible(ctx context.Context, id, responsibleID string) error {
	tx, ok := s.m.transactions[id]
	if !ok {
		return errors.NotFound("transaction")
	}
	tx.ResponsibleID = &responsibleID
	return nil
}

func (s *memTransactions) UpdateTotals(ctx context.Context, id string, totalCost, totalWeight decimal.Decimal) error {
	tx, ok := s.m.transactions[id]
	if !ok {
		return errors.NotFound("transaction")
	}
	tx.TotalCost = totalCost
	tx.TotalWeight = totalWeight
	return nil
}

func (s *memTransactions) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range s.m.transactions {
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.WarehouseID != "" && tx.WarehouseID != filter.WarehouseID &&
			(tx.WarehouseInID == nil || *tx.WarehouseInID != filter.WarehouseID) {
			continue
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memTransactions) CreateDetail(ctx context.Context, detail *domain.TransactionDetail) error {
	if detail.ID == "" {
		detail.ID = s.m.nextID("detail")
	}
	for _, d := range s.m.details {
		if d.TransactionID == detail.TransactionID && d.ProductID == detail.ProductID {
			return errors.Conflict("a record with these values already exists")
		}
	}
	c := *detail
	s.m.details[detail.ID] = &c
	return nil
}

func (s *memTransactions) UpdateDetailQuantity(ctx context.Context, detailID string, quantity int) error {
	d, ok := s.m.details[detailID]
	if !ok {
		return errors.NotFound("transaction_detail")
	}
	d.Quantity = quantity
	return nil
}

func (s *memTransactions) DeleteDetail(ctx context.Context, detailID string) error {
	delete(s.m.details, detailID)
	return nil
}

func (s *memTransactions) ListDetails(ctx context.Context, transactionID string) ([]domain.TransactionDetail, error) {
	var out []domain.TransactionDetail
	for _, d := range s.m.details {
		if d.TransactionID == transactionID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// ReturnStore

type memReturns storeRef

func (s *memReturns) Create(ctx context.Context, ret *domain.ReturnTransaction) error {
	if ret.ID == "" {
		ret.ID = s.m.nextID("return")
	}
	ret.CreatedAt = time.Now().UTC()
	for i := range ret.Details {
		if ret.Details[i].ID == "" {
			ret.Details[i].ID = s.m.nextID("retdetail")
		}
		ret.Details[i].ReturnID = ret.ID
	}
	c := *ret
	c.Details = append([]domain.ReturnTransactionDetail{}, ret.Details...)
	s.m.returns = append(s.m.returns, &c)
	return nil
}

func (s *memReturns) ListByTransaction(ctx context.Context, transactionID string) ([]domain.ReturnTransaction, error) {
	var out []domain.ReturnTransaction
	for _, r := range s.m.returns {
		if r.TransactionID == transactionID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// ProductionStore

type memProduction storeRef

func (s *memProduction) Create(ctx context.Context, order *domain.ProductionOrder) error {
	if order.ID == "" {
		order.ID = s.m.nextID("prod")
	}
	if order.Status == domain.ProductionStatusProcessing {
		if other, _ := s.GetProcessing(ctx); other != nil {
			return errors.ConflictWithKey("production.already_processing",
				map[string]string{"id": other.ID})
		}
	}
	c := *order
	c.FinishProducts = nil
	s.m.productions[order.ID] = &c
	for i := range order.FinishProducts {
		order.FinishProducts[i].ProductionID = order.ID
		if err := s.AddFinishProduct(ctx, &order.FinishProducts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memProduction) Get(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	po, ok := s.m.productions[id]
	if !ok {
		return nil, errors.NotFound("production_order")
	}
	c := *po
	fps, _ := s.ListFinishProducts(ctx, id)
	c.FinishProducts = fps
	for _, d := range s.m.devices {
		if d.CurrentProductionID != nil && *d.CurrentProductionID == id {
			code := d.DeviceCode
			c.DeviceCode = &code
		}
	}
	return &c, nil
}

func (s *memProduction) GetForUpdate(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	return s.Get(ctx, id)
}

func (s *memProduction) UpdateStatus(ctx context.Context, id, status string) error {
	po, ok := s.m.productions[id]
	if !ok {
		return errors.NotFound("production_order")
	}
	if status == domain.ProductionStatusProcessing {
		if other, _ := s.GetProcessing(ctx); other != nil && other.ID != id {
			return errors.ConflictWithKey("production.already_processing",
				map[string]string{"id": other.ID})
		}
	}
	po.Status = status
	return nil
}

func (s *memProduction) List(ctx context.Context, status string, limit, offset int) ([]domain.ProductionOrder, error) {
	var out []domain.ProductionOrder
	for _, po := range s.m.productions {
		if status == "" || po.Status == status {
			out = append(out, *po)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memProduction) GetProcessing(ctx context.Context) (*domain.ProductionOrder, error) {
	for _, po := range s.m.productions {
		if po.Status == domain.ProductionStatusProcessing {
			c := *po
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memProduction) AddMaterial(ctx context.Context, m *domain.ProductionMaterial) error {
	if m.ID == "" {
		m.ID = s.m.nextID("material")
	}
	c := *m
	s.m.materials = append(s.m.materials, &c)
	return nil
}

func (s *memProduction) ListMaterials(ctx context.Context, productionID string) ([]domain.ProductionMaterial, error) {
	var out []domain.ProductionMaterial
	for _, m := range s.m.materials {
		if m.ProductionID == productionID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memProduction) AddFinishProduct(ctx context.Context, fp *domain.FinishProduct) error {
	if fp.ID == "" {
		fp.ID = s.m.nextID("fp")
	}
	c := *fp
	s.m.finished[fp.ProductionID] = append(s.m.finished[fp.ProductionID], &c)
	return nil
}

func (s *memProduction) ListFinishProducts(ctx context.Context, productionID string) ([]domain.FinishProduct, error) {
	var out []domain.FinishProduct
	for _, fp := range s.m.finished[productionID] {
		out = append(out, *fp)
	}
	return out, nil
}

// DeviceStore

type memDevices storeRef

func (s *memDevices) Get(ctx context.Context, deviceCode string) (*domain.IoTDevice, error) {
	d, ok := s.m.devices[deviceCode]
	if !ok {
		return nil, errors.NotFound("iot_device")
	}
	c := *d
	return &c, nil
}

func (s *memDevices) Bind(ctx context.Context, deviceCode, productionID string) error {
	d, ok := s.m.devices[deviceCode]
	if !ok || d.CurrentProductionID != nil {
		return errors.ConflictWithKey("production.device_busy",
			map[string]string{"device": deviceCode})
	}
	d.CurrentProductionID = &productionID
	return nil
}

func (s *memDevices) Unbind(ctx context.Context, productionID string) error {
	for _, d := range s.m.devices {
		if d.CurrentProductionID != nil && *d.CurrentProductionID == productionID {
			d.CurrentProductionID = nil
		}
	}
	return nil
}

// Collaborator fakes

type fakeCatalog map[string]*domain.ProductInfo

func (c fakeCatalog) GetByID(ctx context.Context, id string) (*domain.ProductInfo, error) {
	p, ok := c[id]
	if !ok {
		return nil, errors.NotFoundWithKey("product")
	}
	return p, nil
}

func (c fakeCatalog) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.ProductInfo, error) {
	out := make(map[string]*domain.ProductInfo, len(ids))
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeWarehouses map[string]*domain.WarehouseInfo

func (w fakeWarehouses) GetByID(ctx context.Context, id string) (*domain.WarehouseInfo, error) {
	wh, ok := w[id]
	if !ok {
		return nil, errors.NotFoundWithKey("warehouse")
	}
	return wh, nil
}

func (w fakeWarehouses) List(ctx context.Context) ([]domain.WarehouseInfo, error) {
	var out []domain.WarehouseInfo
	for _, wh := range w {
		out = append(out, *wh)
	}
	return out, nil
}

type fakeUsers map[string]*domain.EmployeeInfo

func (u fakeUsers) GetByID(ctx context.Context, id string) (*domain.EmployeeInfo, error) {
	emp, ok := u[id]
	if !ok {
		return nil, errors.NotFoundWithKey("employee")
	}
	return emp, nil
}

// nopPublisher swallows events.
type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(context.Context, *domain.Transaction)                  {}
func (nopPublisher) PublishOrderStatusChanged(context.Context, string, string, string, string) {}
func (nopPublisher) PublishOrderReturned(context.Context, *domain.ReturnTransaction, bool, string) {
}
func (nopPublisher) PublishTransferCreated(context.Context, *domain.Transaction)   {}
func (nopPublisher) PublishTransferCancelled(context.Context, *domain.Transaction) {}
func (nopPublisher) PublishStockReceived(context.Context, *domain.StockBatch)      {}
func (nopPublisher) PublishProductionStatusChanged(context.Context, string, string, string, string) {
}
func (nopPublisher) PublishProductionFinished(context.Context, string, int) {}

// Test environment wiring

type testEnv struct {
	store      *memStore
	runner     *fakeRunner
	catalog    fakeCatalog
	warehouses fakeWarehouses
	users      fakeUsers
	now        time.Time
}

func newTestEnv() *testEnv {
	store := newMemStore()
	return &testEnv{
		store:      store,
		runner:     &fakeRunner{m: store},
		catalog:    fakeCatalog{},
		warehouses: fakeWarehouses{},
		users:      fakeUsers{},
		now:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (e *testEnv) clock() func() time.Time {
	return func() time.Time { return e.now }
}

func (e *testEnv) addProduct(id, name string, price int64) {
	e.catalog[id] = &domain.ProductInfo{
		ID:            id,
		Name:          name,
		Unit:          "cái",
		UnitPrice:     decimal.NewFromInt(price),
		WeightPerUnit: decimal.NewFromInt(1),
		IsActive:      true,
	}
	e.store.productNames[id] = name
}

func (e *testEnv) addWarehouse(id, name string) {
	e.warehouses[id] = &domain.WarehouseInfo{ID: id, Name: name, IsActive: true}
}

func (e *testEnv) addEmployee(id, name string) {
	e.users[id] = &domain.EmployeeInfo{ID: id, FullName: name, RoleName: "staff"}
}

// addBatch seeds a lot and keeps the aggregate in sync.
func (e *testEnv) addBatch(warehouseID, productID string, quantity, importDay int) *domain.StockBatch {
	b := &domain.StockBatch{
		ID:          e.store.nextID("seed"),
		WarehouseID: warehouseID,
		ProductID:   productID,
		QuantityIn:  quantity,
		ImportDate:  time.Date(2024, 1, importDay, 0, 0, 0, 0, time.UTC),
	}
	e.store.batches[b.ID] = b

	key := invKey(warehouseID, productID)
	inv, ok := e.store.inventory[key]
	if !ok {
		inv = &domain.Inventory{WarehouseID: warehouseID, ProductID: productID}
		e.store.inventory[key] = inv
	}
	inv.Quantity += quantity
	return b
}

func (e *testEnv) addDevice(code string) {
	e.store.devices[code] = &domain.IoTDevice{DeviceCode: code}
}

func (e *testEnv) quantity(warehouseID, productID string) int {
	inv, ok := e.store.inventory[invKey(warehouseID, productID)]
	if !ok {
		return 0
	}
	return inv.Quantity
}

// batchSum recomputes the aggregate from the lots for invariant checks.
func (e *testEnv) batchSum(warehouseID, productID string) int {
	sum := 0
	for _, b := range e.store.batches {
		if b.WarehouseID == warehouseID && b.ProductID == productID && !b.IsExpired(e.now) {
			sum += b.Remaining()
		}
	}
	return sum
}

func testLogger() *logger.Logger {
	return logger.New("test", "test")
}

func strPtr(s string) *string { return &s }

// containsVietnamese reports whether the localized message carries the
// given fragment; used to assert user-facing texts like "còn 3".
func containsFragment(msg, fragment string) bool {
	return strings.Contains(msg, fragment)
}
