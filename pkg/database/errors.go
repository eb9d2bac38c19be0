package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return mapUniqueConstraint(pqErr)

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_out_lte_in"):
		// A batch can never be consumed past its received quantity.
		return errors.Conflict("stock batch consumption exceeds received quantity")

	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Conflict("inventory quantity cannot go negative")

	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// mapUniqueConstraint maps unique violations to domain conflicts. The partial
// index on processing production orders and the device binding column both
// enforce exclusivity invariants at the database level.
func mapUniqueConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "production_orders_single_processing"):
		return errors.ConflictWithKey("production.already_processing",
			map[string]string{"id": "?"})
	case strings.Contains(constraint, "iot_devices_production"):
		return errors.ConflictWithKey("production.device_busy",
			map[string]string{"device": pqErr.Detail})
	case strings.Contains(constraint, "inventory_warehouse_product"):
		return errors.Conflict("inventory row already exists for this warehouse and product")
	default:
		return errors.Conflict("a record with these values already exists")
	}
}
