package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Warehouse is the directory record behind domain.WarehouseInfo.
type Warehouse struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   *string   `db:"address" json:"address,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (w *Warehouse) info() *domain.WarehouseInfo {
	return &domain.WarehouseInfo{
		ID:       w.ID,
		Name:     w.Name,
		IsActive: w.IsActive,
	}
}

// WarehouseRepository handles warehouse persistence and implements
// domain.WarehouseDirectory for the stock services.
type WarehouseRepository struct {
	db *database.DB
}

// NewWarehouseRepository creates a new warehouse repository
func NewWarehouseRepository(db *database.DB) *WarehouseRepository {
	return &WarehouseRepository{db: db}
}

// Create creates a warehouse
func (r *WarehouseRepository) Create(ctx context.Context, w *Warehouse) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}

	query := `
		INSERT INTO warehouses (id, name, address, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, w.ID, w.Name, w.Address, w.IsActive).
		Scan(&w.CreatedAt, &w.UpdatedAt)
	return mapErr(err, "warehouse")
}

// Get gets a warehouse by ID
func (r *WarehouseRepository) Get(ctx context.Context, id string) (*Warehouse, error) {
	var w Warehouse
	query := `SELECT * FROM warehouses WHERE id = $1`
	if err := r.db.GetContext(ctx, &w, query, id); err != nil {
		return nil, mapErr(err, "warehouse")
	}
	return &w, nil
}

// ListAll lists every warehouse including inactive ones
func (r *WarehouseRepository) ListAll(ctx context.Context) ([]Warehouse, error) {
	var warehouses []Warehouse
	query := `SELECT * FROM warehouses ORDER BY name`
	if err := r.db.SelectContext(ctx, &warehouses, query); err != nil {
		return nil, mapErr(err, "warehouse")
	}
	return warehouses, nil
}

// Update updates a warehouse's mutable fields
func (r *WarehouseRepository) Update(ctx context.Context, w *Warehouse) error {
	query := `
		UPDATE warehouses
		SET name = $2, address = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, w.ID, w.Name, w.Address, w.IsActive).
		Scan(&w.UpdatedAt)
	return mapErr(err, "warehouse")
}

// Deactivate soft-deletes a warehouse
func (r *WarehouseRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE warehouses SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "warehouse")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFoundWithKey("warehouse")
	}
	return nil
}

// GetByID implements domain.WarehouseDirectory
func (r *WarehouseRepository) GetByID(ctx context.Context, id string) (*domain.WarehouseInfo, error) {
	w, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.info(), nil
}

// List implements domain.WarehouseDirectory; only active warehouses are
// eligible for stock operations.
func (r *WarehouseRepository) List(ctx context.Context) ([]domain.WarehouseInfo, error) {
	var warehouses []Warehouse
	query := `SELECT * FROM warehouses WHERE is_active ORDER BY name`
	if err := r.db.SelectContext(ctx, &warehouses, query); err != nil {
		return nil, mapErr(err, "warehouse")
	}

	out := make([]domain.WarehouseInfo, 0, len(warehouses))
	for i := range warehouses {
		out = append(out, *warehouses[i].info())
	}
	return out, nil
}
