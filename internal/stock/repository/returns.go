package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
)

type returnStore struct {
	ext sqlx.ExtContext
}

func (s *returnStore) Create(ctx context.Context, ret *domain.ReturnTransaction) error {
	if ret.ID == "" {
		ret.ID = uuid.New().String()
	}

	query := `
		INSERT INTO return_transactions (id, transaction_id, responsible_id, note)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := s.ext.QueryRowxContext(ctx, query,
		ret.ID, ret.TransactionID, ret.ResponsibleID, ret.Note,
	).Scan(&ret.CreatedAt)
	if err != nil {
		return mapErr(err, "return_transaction")
	}

	for i := range ret.Details {
		d := &ret.Details[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		d.ReturnID = ret.ID

		_, err := s.ext.ExecContext(ctx, `
			INSERT INTO return_transaction_details (id, return_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, d.ID, d.ReturnID, d.ProductID, d.Quantity, d.UnitPrice)
		if err != nil {
			return mapErr(err, "return_transaction_detail")
		}
	}
	return nil
}

func (s *returnStore) ListByTransaction(ctx context.Context, transactionID string) ([]domain.ReturnTransaction, error) {
	var returns []domain.ReturnTransaction
	query := `
		SELECT * FROM return_transactions
		WHERE transaction_id = $1
		ORDER BY created_at
	`
	if err := sqlx.SelectContext(ctx, s.ext, &returns, query, transactionID); err != nil {
		return nil, mapErr(err, "return_transaction")
	}

	for i := range returns {
		var details []domain.ReturnTransactionDetail
		err := sqlx.SelectContext(ctx, s.ext, &details, `
			SELECT * FROM return_transaction_details
			WHERE return_id = $1
			ORDER BY product_id
		`, returns[i].ID)
		if err != nil {
			return nil, mapErr(err, "return_transaction_detail")
		}
		returns[i].Details = details
	}
	return returns, nil
}
