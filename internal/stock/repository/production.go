package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type productionStore struct {
	ext sqlx.ExtContext
}

func (s *productionStore) Create(ctx context.Context, order *domain.ProductionOrder) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}

	query := `
		INSERT INTO production_orders (
			id, status, material_product_id, material_quantity,
			material_warehouse_id, responsible_id, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.ext.QueryRowxContext(ctx, query,
		order.ID, order.Status, order.MaterialProductID, order.MaterialQuantity,
		order.MaterialWarehouseID, order.ResponsibleID, order.Note,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return mapErr(err, "production_order")
	}

	for i := range order.FinishProducts {
		order.FinishProducts[i].ProductionID = order.ID
		if err := s.AddFinishProduct(ctx, &order.FinishProducts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *productionStore) Get(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	return s.get(ctx, id, false)
}

func (s *productionStore) GetForUpdate(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	return s.get(ctx, id, true)
}

func (s *productionStore) get(ctx context.Context, id string, forUpdate bool) (*domain.ProductionOrder, error) {
	var order domain.ProductionOrder
	query := `SELECT * FROM production_orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	if err := sqlx.GetContext(ctx, s.ext, &order, query, id); err != nil {
		return nil, mapErr(err, "production_order")
	}

	fps, err := s.ListFinishProducts(ctx, id)
	if err != nil {
		return nil, err
	}
	order.FinishProducts = fps

	var deviceCode string
	err = sqlx.GetContext(ctx, s.ext, &deviceCode,
		`SELECT device_code FROM iot_devices WHERE current_production_id = $1`, id)
	if err == nil {
		order.DeviceCode = &deviceCode
	} else if err != sql.ErrNoRows {
		return nil, mapErr(err, "iot_device")
	}

	return &order, nil
}

func (s *productionStore) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE production_orders SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.ext.ExecContext(ctx, query, id, status)
	if err != nil {
		return mapErr(err, "production_order")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("production_order")
	}
	return nil
}

func (s *productionStore) List(ctx context.Context, status string, limit, offset int) ([]domain.ProductionOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var orders []domain.ProductionOrder
	var err error
	if status != "" {
		query := fmt.Sprintf(`
			SELECT * FROM production_orders
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT %d OFFSET %d
		`, limit, offset)
		err = sqlx.SelectContext(ctx, s.ext, &orders, query, status)
	} else {
		query := fmt.Sprintf(`
			SELECT * FROM production_orders
			ORDER BY created_at DESC
			LIMIT %d OFFSET %d
		`, limit, offset)
		err = sqlx.SelectContext(ctx, s.ext, &orders, query)
	}
	if err != nil {
		return nil, mapErr(err, "production_order")
	}
	return orders, nil
}

// GetProcessing returns the order currently Processing, or nil when the
// production line is idle. The row is locked; when no row exists the
// partial unique index catches concurrent starts at commit instead.
func (s *productionStore) GetProcessing(ctx context.Context) (*domain.ProductionOrder, error) {
	var order domain.ProductionOrder
	query := `SELECT * FROM production_orders WHERE status = $1 LIMIT 1 FOR UPDATE`
	err := sqlx.GetContext(ctx, s.ext, &order, query, domain.ProductionStatusProcessing)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "production_order")
	}
	return &order, nil
}

func (s *productionStore) AddMaterial(ctx context.Context, m *domain.ProductionMaterial) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	query := `
		INSERT INTO production_materials (id, production_id, product_id, quantity, warehouse_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.ext.ExecContext(ctx, query, m.ID, m.ProductionID, m.ProductID, m.Quantity, m.WarehouseID)
	return mapErr(err, "production_material")
}

func (s *productionStore) ListMaterials(ctx context.Context, productionID string) ([]domain.ProductionMaterial, error) {
	var materials []domain.ProductionMaterial
	query := `SELECT * FROM production_materials WHERE production_id = $1 ORDER BY product_id`
	if err := sqlx.SelectContext(ctx, s.ext, &materials, query, productionID); err != nil {
		return nil, mapErr(err, "production_material")
	}
	return materials, nil
}

func (s *productionStore) AddFinishProduct(ctx context.Context, fp *domain.FinishProduct) error {
	if fp.ID == "" {
		fp.ID = uuid.New().String()
	}
	query := `
		INSERT INTO production_finish_products (id, production_id, product_id, quantity, warehouse_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.ext.ExecContext(ctx, query, fp.ID, fp.ProductionID, fp.ProductID, fp.Quantity, fp.WarehouseID)
	return mapErr(err, "finish_product")
}

func (s *productionStore) ListFinishProducts(ctx context.Context, productionID string) ([]domain.FinishProduct, error) {
	var fps []domain.FinishProduct
	query := `SELECT * FROM production_finish_products WHERE production_id = $1 ORDER BY product_id`
	if err := sqlx.SelectContext(ctx, s.ext, &fps, query, productionID); err != nil {
		return nil, mapErr(err, "finish_product")
	}
	return fps, nil
}
