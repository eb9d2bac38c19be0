// Package repository implements the stock domain ports on PostgreSQL via
// sqlx. Every store runs on an sqlx.ExtContext so the same implementation
// serves both plain connections and transactions; TxRunner binds a full
// set of stores to one transaction.
package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// NewStores builds a store bundle over the given executor.
func NewStores(ext sqlx.ExtContext) domain.Stores {
	return domain.Stores{
		Inventory:    &inventoryStore{ext: ext},
		Batches:      &batchStore{ext: ext},
		Transactions: &transactionStore{ext: ext},
		Returns:      &returnStore{ext: ext},
		Production:   &productionStore{ext: ext},
		Devices:      &deviceStore{ext: ext},
	}
}

// TxRunner runs lifecycle operations inside a single database
// transaction with transaction-bound stores.
type TxRunner struct {
	db *database.DB
}

// NewTxRunner creates a TxRunner on the shared database handle.
func NewTxRunner(db *database.DB) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx implements domain.TxRunner.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(s domain.Stores) error) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(NewStores(tx))
	})
}

// mapErr converts driver errors to AppErrors: missing rows become
// NotFound for the named resource, constraint violations become the
// domain conflicts pkg/database knows about.
func mapErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return errors.NotFound(resource)
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}
