package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// TelemetryQuery serves dashboard reads from Postgres.
type TelemetryQuery struct {
	db *sql.DB
}

// NewTelemetryQuery constructs a query.
func NewTelemetryQuery(db *sql.DB) *TelemetryQuery {
	return &TelemetryQuery{db: db}
}

// Latest returns the newest reading per sensor type for a device.
func (q *TelemetryQuery) Latest(ctx context.Context, deviceID string) ([]telemetry.Reading, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT DISTINCT ON (sensor_type) id, device_id, sensor_type, value, unit, recorded_at
FROM telemetry
WHERE device_id = $1
ORDER BY sensor_type, recorded_at DESC`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReadings(rows)
}

// History returns readings since the given time, newest first.
func (q *TelemetryQuery) History(ctx context.Context, deviceID string, since time.Time, sensorType string, limit int) ([]telemetry.Reading, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}

	query := `
SELECT id, device_id, sensor_type, value, unit, recorded_at
FROM telemetry
WHERE device_id = $1 AND recorded_at >= $2`
	args := []any{deviceID, since}
	if sensorType != "" {
		query += ` AND sensor_type = $3`
		args = append(args, sensorType)
	}
	query += ` ORDER BY recorded_at DESC`
	if limit > 0 {
		args = append(args, limit)
		if sensorType != "" {
			query += ` LIMIT $4`
		} else {
			query += ` LIMIT $3`
		}
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReadings(rows)
}

func collectReadings(rows *sql.Rows) ([]telemetry.Reading, error) {
	var result []telemetry.Reading
	for rows.Next() {
		var reading telemetry.Reading
		if err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.SensorType,
			&reading.Value,
			&reading.Unit,
			&reading.RecordedAt,
		); err != nil {
			return nil, err
		}
		reading.RecordedAt = reading.RecordedAt.UTC()
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
