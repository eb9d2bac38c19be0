package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
)

type inventoryStore struct {
	ext sqlx.ExtContext
}

func (s *inventoryStore) Get(ctx context.Context, warehouseID, productID string) (*domain.Inventory, error) {
	var inv domain.Inventory
	query := `SELECT * FROM inventory WHERE warehouse_id = $1 AND product_id = $2`
	if err := sqlx.GetContext(ctx, s.ext, &inv, query, warehouseID, productID); err != nil {
		return nil, mapErr(err, "inventory")
	}
	return &inv, nil
}

// GetForUpdate locks the inventory row until the surrounding transaction
// ends. Concurrent reservations on the same (warehouse, product) queue
// behind this lock.
func (s *inventoryStore) GetForUpdate(ctx context.Context, warehouseID, productID string) (*domain.Inventory, error) {
	var inv domain.Inventory
	query := `SELECT * FROM inventory WHERE warehouse_id = $1 AND product_id = $2 FOR UPDATE`
	if err := sqlx.GetContext(ctx, s.ext, &inv, query, warehouseID, productID); err != nil {
		return nil, mapErr(err, "inventory")
	}
	return &inv, nil
}

func (s *inventoryStore) AdjustQuantity(ctx context.Context, warehouseID, productID string, delta int) error {
	query := `
		INSERT INTO inventory (warehouse_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT inventory_warehouse_product_key
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = NOW()
	`
	_, err := s.ext.ExecContext(ctx, query, warehouseID, productID, delta)
	return mapErr(err, "inventory")
}

func (s *inventoryStore) ListByWarehouse(ctx context.Context, warehouseID string) ([]domain.WarehouseStock, error) {
	var rows []domain.WarehouseStock
	query := `
		SELECT i.warehouse_id, i.product_id, p.name AS product_name, i.quantity
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.warehouse_id = $1 AND i.quantity > 0
		ORDER BY p.name
	`
	if err := sqlx.SelectContext(ctx, s.ext, &rows, query, warehouseID); err != nil {
		return nil, mapErr(err, "inventory")
	}
	return rows, nil
}

func (s *inventoryStore) ListByProduct(ctx context.Context, productID string) ([]domain.Inventory, error) {
	var rows []domain.Inventory
	query := `
		SELECT * FROM inventory
		WHERE product_id = $1 AND quantity > 0
		ORDER BY quantity DESC
	`
	if err := sqlx.SelectContext(ctx, s.ext, &rows, query, productID); err != nil {
		return nil, mapErr(err, "inventory")
	}
	return rows, nil
}
