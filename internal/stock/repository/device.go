package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/stock/domain"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

type deviceStore struct {
	ext sqlx.ExtContext
}

func (s *deviceStore) Get(ctx context.Context, deviceCode string) (*domain.IoTDevice, error) {
	var device domain.IoTDevice
	query := `SELECT * FROM iot_devices WHERE device_code = $1`
	if err := sqlx.GetContext(ctx, s.ext, &device, query, deviceCode); err != nil {
		return nil, mapErr(err, "iot_device")
	}
	return &device, nil
}

// Bind is a check-and-set: the UPDATE only matches when the device is
// currently unbound, so two concurrent binds cannot both succeed. A
// zero-row result means the device is busy.
func (s *deviceStore) Bind(ctx context.Context, deviceCode, productionID string) error {
	query := `
		UPDATE iot_devices
		SET current_production_id = $2, updated_at = NOW()
		WHERE device_code = $1 AND current_production_id IS NULL
	`
	result, err := s.ext.ExecContext(ctx, query, deviceCode, productionID)
	if err != nil {
		return mapErr(err, "iot_device")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.ConflictWithKey("production.device_busy",
			map[string]string{"device": deviceCode})
	}
	return nil
}

func (s *deviceStore) Unbind(ctx context.Context, productionID string) error {
	query := `
		UPDATE iot_devices
		SET current_production_id = NULL, updated_at = NOW()
		WHERE current_production_id = $1
	`
	_, err := s.ext.ExecContext(ctx, query, productionID)
	return mapErr(err, "iot_device")
}
