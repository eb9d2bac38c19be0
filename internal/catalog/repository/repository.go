// Package repository persists the product catalog, the warehouse
// directory and the employee cache the stock services resolve against.
package repository

import (
	"database/sql"

	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// mapErr converts driver errors to AppErrors; missing rows become a
// localized NotFound for the named resource key.
func mapErr(err error, resourceKey string) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return errors.NotFoundWithKey(resourceKey)
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}
