package postgres

import (
	"context"
	"database/sql"
	"errors"

	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// TelemetryRepository is a Postgres implementation for readings.
type TelemetryRepository struct {
	db *sql.DB
}

// NewTelemetryRepository constructs a repository.
func NewTelemetryRepository(db *sql.DB) *TelemetryRepository {
	return &TelemetryRepository{db: db}
}

// InsertReadings stores a batch in one transaction.
func (r *TelemetryRepository) InsertReadings(ctx context.Context, readings []telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO telemetry (device_id, sensor_type, value, unit)
VALUES ($1, $2, $3, $4)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, reading := range readings {
		if reading.DeviceID == "" || reading.SensorType == "" || reading.Unit == "" {
			_ = tx.Rollback()
			return errors.New("telemetry repo: invalid reading")
		}
		if _, err := stmt.ExecContext(ctx, reading.DeviceID, reading.SensorType, reading.Value, reading.Unit); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
