package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	devices "greenhouse-cloud/internal/devices/domain"
)

const uniqueViolation = "23505"

// DeviceRepository is a Postgres implementation for devices.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create inserts a device and assigns its numeric id.
func (r *DeviceRepository) Create(ctx context.Context, device *devices.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if device == nil {
		return errors.New("device repo: nil device")
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO devices (device_id, user_id, name, location, active, api_token)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`,
		device.DeviceID, device.UserID, device.Name, nullString(device.Location), device.Active, device.APIToken,
	).Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return devices.ErrAlreadyRegistered
		}
		return err
	}
	device.CreatedAt = device.CreatedAt.UTC()
	return nil
}

// GetByDeviceID fetches a device by its external identifier.
func (r *DeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, device_id, user_id, name, location, active, api_token, last_seen, created_at
FROM devices
WHERE device_id = $1
LIMIT 1`, deviceID)
	return scanDevice(row)
}

// ListByUser lists a user's devices ordered by name.
func (r *DeviceRepository) ListByUser(ctx context.Context, userID int64) ([]devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, device_id, user_id, name, location, active, api_token, last_seen, created_at
FROM devices
WHERE user_id = $1
ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []devices.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update applies a partial update scoped by device id and owner.
func (r *DeviceRepository) Update(ctx context.Context, userID int64, deviceID string, fields devices.UpdateFields) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("device repo: nil db")
	}
	var sets []string
	var args []any
	if fields.Name != nil {
		args = append(args, *fields.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if fields.Location != nil {
		args = append(args, *fields.Location)
		sets = append(sets, fmt.Sprintf("location = $%d", len(args)))
	}
	if fields.Active != nil {
		args = append(args, *fields.Active)
		sets = append(sets, fmt.Sprintf("active = $%d", len(args)))
	}
	if len(sets) == 0 {
		return false, devices.ErrValidation
	}
	args = append(args, deviceID, userID)
	query := fmt.Sprintf(`
UPDATE devices
SET %s
WHERE device_id = $%d AND user_id = $%d`, strings.Join(sets, ", "), len(args)-1, len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// Delete removes a device scoped by owner. Commands, telemetry and alarm
// rules go with it via foreign-key cascade.
func (r *DeviceRepository) Delete(ctx context.Context, userID int64, deviceID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("device repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM devices
WHERE device_id = $1 AND user_id = $2`, deviceID, userID)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// TouchLastSeen stamps last_seen for a device reporting in.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE devices
SET last_seen = $1
WHERE device_id = $2`, at, deviceID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*devices.Device, error) {
	var device devices.Device
	var location sql.NullString
	var lastSeen sql.NullTime
	if err := row.Scan(
		&device.ID,
		&device.DeviceID,
		&device.UserID,
		&device.Name,
		&location,
		&device.Active,
		&device.APIToken,
		&lastSeen,
		&device.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if location.Valid {
		device.Location = location.String
	}
	if lastSeen.Valid {
		device.LastSeen = lastSeen.Time.UTC()
	}
	device.CreatedAt = device.CreatedAt.UTC()
	return &device, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
