package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type transactionStore struct {
	ext sqlx.ExtContext
}

func (s *transactionStore) Create(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	query := `
		INSERT INTO transactions (
			id, type, status, warehouse_id, warehouse_in_id,
			total_cost, total_weight, responsible_id, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := s.ext.QueryRowxContext(ctx, query,
		tx.ID, tx.Type, tx.Status, tx.WarehouseID, tx.WarehouseInID,
		tx.TotalCost, tx.TotalWeight, tx.ResponsibleID, tx.Note,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	return mapErr(err, "transaction")
}

func (s *transactionStore) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.get(ctx, id, false)
}

func (s *transactionStore) GetForUpdate(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.get(ctx, id, true)
}

func (s *transactionStore) get(ctx context.Context, id string, forUpdate bool) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT * FROM transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	if err := sqlx.GetContext(ctx, s.ext, &tx, query, id); err != nil {
		return nil, mapErr(err, "transaction")
	}

	details, err := s.ListDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	tx.Details = details
	return &tx, nil
}

func (s *transactionStore) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE transactions SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.ext.ExecContext(ctx, query, id, status)
	if err != nil {
		return mapErr(err, "transaction")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("transaction")
	}
	return nil
}

func (s *transactionStore) SetResponsible(ctx context.Context, id, responsibleID string) error {
	query := `UPDATE transactions SET responsible_id = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.ext.ExecContext(ctx, query, id, responsibleID)
	if err != nil {
		return mapErr(err, "transaction")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("transaction")
	}
	return nil
}

func (s *transactionStore) UpdateTotals(ctx context.Context, id string, totalCost, totalWeight decimal.Decimal) error {
	query := `UPDATE transactions SET total_cost = $2, total_weight = $3, updated_at = NOW() WHERE id = $1`
	_, err := s.ext.ExecContext(ctx, query, id, totalCost, totalWeight)
	return mapErr(err, "transaction")
}

func (s *transactionStore) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argPos := 1

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argPos))
		args = append(args, filter.Type)
		argPos++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filter.Status)
		argPos++
	}
	if filter.WarehouseID != "" {
		conditions = append(conditions, fmt.Sprintf("(warehouse_id = $%d OR warehouse_in_id = $%d)", argPos, argPos))
		args = append(args, filter.WarehouseID)
		argPos++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT * FROM transactions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, strings.Join(conditions, " AND "), limit, offset)

	var txs []domain.Transaction
	if err := sqlx.SelectContext(ctx, s.ext, &txs, query, args...); err != nil {
		return nil, mapErr(err, "transaction")
	}
	return txs, nil
}

func (s *transactionStore) CreateDetail(ctx context.Context, detail *domain.TransactionDetail) error {
	if detail.ID == "" {
		detail.ID = uuid.New().String()
	}

	query := `
		INSERT INTO transaction_details (
			id, transaction_id, product_id, quantity, unit_price, weight_per_unit
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.ext.ExecContext(ctx, query,
		detail.ID, detail.TransactionID, detail.ProductID,
		detail.Quantity, detail.UnitPrice, detail.WeightPerUnit,
	)
	return mapErr(err, "transaction_detail")
}

func (s *transactionStore) UpdateDetailQuantity(ctx context.Context, detailID string, quantity int) error {
	query := `UPDATE transaction_details SET quantity = $2 WHERE id = $1`
	_, err := s.ext.ExecContext(ctx, query, detailID, quantity)
	return mapErr(err, "transaction_detail")
}

func (s *transactionStore) DeleteDetail(ctx context.Context, detailID string) error {
	_, err := s.ext.ExecContext(ctx, `DELETE FROM transaction_details WHERE id = $1`, detailID)
	return mapErr(err, "transaction_detail")
}

func (s *transactionStore) ListDetails(ctx context.Context, transactionID string) ([]domain.TransactionDetail, error) {
	var details []domain.TransactionDetail
	query := `
		SELECT * FROM transaction_details
		WHERE transaction_id = $1
		ORDER BY product_id
	`
	if err := sqlx.SelectContext(ctx, s.ext, &details, query, transactionID); err != nil {
		return nil, mapErr(err, "transaction_detail")
	}
	return details, nil
}
