// Package testutil provides testing utilities for the StockFlow backend.
// It includes a testcontainers PostgreSQL harness, sqlmock factories, and
// common fixtures for the stock domain.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "stockflow_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "stockflow_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// ApplySchema creates the full stock service schema. The CHECK constraints
// and partial unique indexes here are load-bearing: the service relies on
// them as the last line of defense for the non-negative stock and
// single-processing invariants, and pkg/database maps their violations to
// domain conflicts by constraint name.
func (c *PostgresContainer) ApplySchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			sku VARCHAR(100) UNIQUE NOT NULL,
			unit VARCHAR(50) NOT NULL DEFAULT 'unit',
			unit_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			weight_per_unit NUMERIC(12,3) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS warehouses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			address TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		-- Local cache of users, maintained from user.events
		CREATE TABLE IF NOT EXISTS employee_cache (
			user_id UUID PRIMARY KEY,
			full_name VARCHAR(255) NOT NULL,
			email VARCHAR(255),
			role_name VARCHAR(100),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS inventory (
			warehouse_id UUID NOT NULL REFERENCES warehouses(id),
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT inventory_warehouse_product_key PRIMARY KEY (warehouse_id, product_id),
			CONSTRAINT inventory_quantity_non_negative CHECK (quantity >= 0)
		);

		CREATE TABLE IF NOT EXISTS stock_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			warehouse_id UUID NOT NULL REFERENCES warehouses(id),
			product_id UUID NOT NULL REFERENCES products(id),
			quantity_in INTEGER NOT NULL,
			quantity_out INTEGER NOT NULL DEFAULT 0,
			import_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expire_date TIMESTAMPTZ,
			origin_transfer_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_batches_quantity_positive CHECK (quantity_in > 0),
			CONSTRAINT stock_batches_quantity_out_lte_in CHECK (quantity_out >= 0 AND quantity_out <= quantity_in)
		);
		CREATE INDEX IF NOT EXISTS idx_stock_batches_fifo
			ON stock_batches (warehouse_id, product_id, import_date, id);

		CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			type VARCHAR(20) NOT NULL,
			status VARCHAR(30) NOT NULL,
			warehouse_id UUID NOT NULL REFERENCES warehouses(id),
			warehouse_in_id UUID REFERENCES warehouses(id),
			total_cost NUMERIC(14,2) NOT NULL DEFAULT 0,
			total_weight NUMERIC(14,3) NOT NULL DEFAULT 0,
			responsible_id UUID,
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (type, status);

		CREATE TABLE IF NOT EXISTS transaction_details (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transaction_id UUID NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			unit_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			weight_per_unit NUMERIC(12,3) NOT NULL DEFAULT 0,
			CONSTRAINT transaction_details_quantity_positive CHECK (quantity > 0),
			CONSTRAINT transaction_details_line_key UNIQUE (transaction_id, product_id)
		);

		CREATE TABLE IF NOT EXISTS return_transactions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transaction_id UUID NOT NULL REFERENCES transactions(id),
			responsible_id UUID,
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS return_transaction_details (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			return_id UUID NOT NULL REFERENCES return_transactions(id) ON DELETE CASCADE,
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			unit_price NUMERIC(14,2) NOT NULL DEFAULT 0,
			CONSTRAINT return_details_quantity_positive CHECK (quantity > 0)
		);

		CREATE TABLE IF NOT EXISTS production_orders (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			status VARCHAR(30) NOT NULL,
			material_product_id UUID NOT NULL REFERENCES products(id),
			material_quantity INTEGER NOT NULL,
			material_warehouse_id UUID REFERENCES warehouses(id),
			responsible_id UUID NOT NULL,
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT production_material_quantity_positive CHECK (material_quantity > 0)
		);
		-- At most one production order may be Processing at any time.
		CREATE UNIQUE INDEX IF NOT EXISTS production_orders_single_processing
			ON production_orders (status) WHERE status = 'Processing';

		-- Consumption audit rows written when an order enters Processing
		CREATE TABLE IF NOT EXISTS production_materials (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			production_id UUID NOT NULL REFERENCES production_orders(id) ON DELETE CASCADE,
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			warehouse_id UUID NOT NULL REFERENCES warehouses(id)
		);

		CREATE TABLE IF NOT EXISTS production_finish_products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			production_id UUID NOT NULL REFERENCES production_orders(id) ON DELETE CASCADE,
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			warehouse_id UUID NOT NULL REFERENCES warehouses(id),
			-- quantity 0 is a declared output whose yield is unknown until the run ends
			CONSTRAINT finish_products_quantity_non_negative CHECK (quantity >= 0)
		);

		CREATE TABLE IF NOT EXISTS iot_devices (
			device_code VARCHAR(100) PRIMARY KEY,
			name VARCHAR(255),
			current_production_id UUID REFERENCES production_orders(id),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT iot_devices_production_key UNIQUE (current_production_id)
		);

		CREATE OR REPLACE FUNCTION update_updated_at()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = NOW();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create stock schema: %w", err)
	}

	return nil
}

// TruncateAll clears all domain tables between tests while keeping the
// schema in place. Order matters because of foreign keys.
func (c *PostgresContainer) TruncateAll(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE iot_devices, production_finish_products, production_materials,
			production_orders, return_transaction_details, return_transactions,
			transaction_details, transactions, stock_batches, inventory,
			employee_cache, warehouses, products CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}
