package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	alarms "greenhouse-cloud/internal/alarms/domain"
)

const uniqueViolation = "23505"

// AlarmRepository is a Postgres implementation for rules and alarms.
type AlarmRepository struct {
	db *sql.DB
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// CreateRule inserts a rule. One rule per device and sensor type; a duplicate
// gets ErrValidation.
func (r *AlarmRepository) CreateRule(ctx context.Context, rule *alarms.Rule) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO alarm_rules (device_id, sensor_type, min_value, max_value, enabled)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`,
		rule.DeviceID, rule.SensorType, rule.Min, rule.Max, rule.Enabled,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return alarms.ErrValidation
		}
		return err
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	return nil
}

// ListRules returns rules for a device.
func (r *AlarmRepository) ListRules(ctx context.Context, deviceID string, enabledOnly bool) ([]alarms.Rule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	query := `
SELECT id, device_id, sensor_type, min_value, max_value, enabled, created_at
FROM alarm_rules
WHERE device_id = $1`
	if enabledOnly {
		query += ` AND enabled`
	}
	query += ` ORDER BY sensor_type`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Rule
	for rows.Next() {
		var rule alarms.Rule
		var minValue, maxValue sql.NullFloat64
		if err := rows.Scan(
			&rule.ID,
			&rule.DeviceID,
			&rule.SensorType,
			&minValue,
			&maxValue,
			&rule.Enabled,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		if minValue.Valid {
			value := minValue.Float64
			rule.Min = &value
		}
		if maxValue.Valid {
			value := maxValue.Float64
			rule.Max = &value
		}
		rule.CreatedAt = rule.CreatedAt.UTC()
		result = append(result, rule)
	}
	return result, rows.Err()
}

// DeleteRule removes a rule scoped to a device.
func (r *AlarmRepository) DeleteRule(ctx context.Context, deviceID string, ruleID int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("alarm repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
DELETE FROM alarm_rules WHERE device_id = $1 AND id = $2`, deviceID, ruleID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecordAlarm inserts a raised alarm.
func (r *AlarmRepository) RecordAlarm(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO alarms (rule_id, device_id, sensor_type, value, threshold, direction, raised_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		alarm.RuleID, alarm.DeviceID, alarm.SensorType,
		alarm.Value, alarm.Threshold, alarm.Direction, alarm.RaisedAt,
	).Scan(&alarm.ID)
}

// ListAlarms returns alarms for a device, newest first.
func (r *AlarmRepository) ListAlarms(ctx context.Context, deviceID string, limit int) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, COALESCE(rule_id, 0), device_id, sensor_type, value, threshold, direction, raised_at
FROM alarms
WHERE device_id = $1
ORDER BY raised_at DESC
LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Alarm
	for rows.Next() {
		var alarm alarms.Alarm
		if err := rows.Scan(
			&alarm.ID,
			&alarm.RuleID,
			&alarm.DeviceID,
			&alarm.SensorType,
			&alarm.Value,
			&alarm.Threshold,
			&alarm.Direction,
			&alarm.RaisedAt,
		); err != nil {
			return nil, err
		}
		alarm.RaisedAt = alarm.RaisedAt.UTC()
		result = append(result, alarm)
	}
	return result, rows.Err()
}
