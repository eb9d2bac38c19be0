package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
)

type batchStore struct {
	ext sqlx.ExtContext
}

// ListAvailable returns the usable lots in FIFO order and locks them for
// the transaction, so two reservations cannot interleave on the same lots.
func (s *batchStore) ListAvailable(ctx context.Context, warehouseID, productID string, now time.Time) ([]domain.StockBatch, error) {
	var batches []domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE warehouse_id = $1 AND product_id = $2
		  AND quantity_out < quantity_in
		  AND (expire_date IS NULL OR expire_date > $3)
		ORDER BY import_date, id
		FOR UPDATE
	`
	if err := sqlx.SelectContext(ctx, s.ext, &batches, query, warehouseID, productID, now); err != nil {
		return nil, mapErr(err, "stock_batch")
	}
	return batches, nil
}

// ListConsumed returns lots with consumption in LIFO order, locked.
func (s *batchStore) ListConsumed(ctx context.Context, warehouseID, productID string) ([]domain.StockBatch, error) {
	var batches []domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE warehouse_id = $1 AND product_id = $2 AND quantity_out > 0
		ORDER BY import_date DESC, id DESC
		FOR UPDATE
	`
	if err := sqlx.SelectContext(ctx, s.ext, &batches, query, warehouseID, productID); err != nil {
		return nil, mapErr(err, "stock_batch")
	}
	return batches, nil
}

func (s *batchStore) ApplyConsumption(ctx context.Context, batchID string, delta int) error {
	query := `
		UPDATE stock_batches
		SET quantity_out = quantity_out + $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := s.ext.ExecContext(ctx, query, batchID, delta)
	return mapErr(err, "stock_batch")
}

func (s *batchStore) Create(ctx context.Context, batch *domain.StockBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.ImportDate.IsZero() {
		batch.ImportDate = time.Now().UTC()
	}

	query := `
		INSERT INTO stock_batches (
			id, warehouse_id, product_id, quantity_in, quantity_out,
			import_date, expire_date, origin_transfer_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.ext.QueryRowxContext(ctx, query,
		batch.ID, batch.WarehouseID, batch.ProductID, batch.QuantityIn, batch.QuantityOut,
		batch.ImportDate, batch.ExpireDate, batch.OriginTransferID,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	return mapErr(err, "stock_batch")
}

func (s *batchStore) Delete(ctx context.Context, batchID string) error {
	_, err := s.ext.ExecContext(ctx, `DELETE FROM stock_batches WHERE id = $1`, batchID)
	return mapErr(err, "stock_batch")
}

func (s *batchStore) GetByOriginTransfer(ctx context.Context, transferID, productID string) (*domain.StockBatch, error) {
	var batch domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE origin_transfer_id = $1 AND product_id = $2
		FOR UPDATE
	`
	if err := sqlx.GetContext(ctx, s.ext, &batch, query, transferID, productID); err != nil {
		return nil, mapErr(err, "stock_batch")
	}
	return &batch, nil
}

func (s *batchStore) AddQuantityIn(ctx context.Context, batchID string, delta int) error {
	query := `
		UPDATE stock_batches
		SET quantity_in = quantity_in + $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := s.ext.ExecContext(ctx, query, batchID, delta)
	return mapErr(err, "stock_batch")
}

func (s *batchStore) ListExpiring(ctx context.Context, warehouseID string, before time.Time) ([]domain.StockBatch, error) {
	var batches []domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE warehouse_id = $1
		  AND expire_date IS NOT NULL AND expire_date <= $2
		  AND quantity_out < quantity_in
		ORDER BY expire_date, id
	`
	if err := sqlx.SelectContext(ctx, s.ext, &batches, query, warehouseID, before); err != nil {
		return nil, mapErr(err, "stock_batch")
	}
	return batches, nil
}
