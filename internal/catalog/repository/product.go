package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// Product is the catalog record behind domain.ProductInfo.
type Product struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	SKU           string          `db:"sku" json:"sku"`
	Unit          string          `db:"unit" json:"unit"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	WeightPerUnit decimal.Decimal `db:"weight_per_unit" json:"weight_per_unit"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

func (p *Product) info() *domain.ProductInfo {
	return &domain.ProductInfo{
		ID:            p.ID,
		Name:          p.Name,
		Unit:          p.Unit,
		UnitPrice:     p.UnitPrice,
		WeightPerUnit: p.WeightPerUnit,
		IsActive:      p.IsActive,
	}
}

// ProductRepository handles product persistence and implements
// domain.ProductCatalog for the stock services.
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create creates a product
func (r *ProductRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO products (id, name, sku, unit, unit_price, weight_per_unit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.SKU, p.Unit, p.UnitPrice, p.WeightPerUnit, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapErr(err, "product")
}

// Get gets a product by ID
func (r *ProductRepository) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	query := `SELECT * FROM products WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, mapErr(err, "product")
	}
	return &p, nil
}

// List lists products, optionally only active ones
func (r *ProductRepository) List(ctx context.Context, activeOnly bool) ([]Product, error) {
	query := `SELECT * FROM products ORDER BY name`
	if activeOnly {
		query = `SELECT * FROM products WHERE is_active ORDER BY name`
	}

	var products []Product
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, mapErr(err, "product")
	}
	return products, nil
}

// Update updates a product's mutable fields
func (r *ProductRepository) Update(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET name = $2, sku = $3, unit = $4, unit_price = $5,
		    weight_per_unit = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.SKU, p.Unit, p.UnitPrice, p.WeightPerUnit, p.IsActive,
	).Scan(&p.UpdatedAt)
	return mapErr(err, "product")
}

// Deactivate soft-deletes a product. Stock rows keep referencing it.
func (r *ProductRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "product")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFoundWithKey("product")
	}
	return nil
}

// GetByID implements domain.ProductCatalog
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.ProductInfo, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.info(), nil
}

// GetByIDs implements domain.ProductCatalog. Unknown ids are simply absent
// from the result map.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.ProductInfo, error) {
	if len(ids) == 0 {
		return map[string]*domain.ProductInfo{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var products []Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, mapErr(err, "product")
	}

	out := make(map[string]*domain.ProductInfo, len(products))
	for i := range products {
		out[products[i].ID] = products[i].info()
	}
	return out, nil
}
