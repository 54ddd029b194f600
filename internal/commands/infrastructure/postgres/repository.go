package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	commands "greenhouse-cloud/internal/commands/domain"
)

// CommandRepository is a Postgres implementation for commands.
type CommandRepository struct {
	db *sql.DB
}

// NewCommandRepository constructs a repository.
func NewCommandRepository(db *sql.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create inserts a pending command and assigns its id.
func (r *CommandRepository) Create(ctx context.Context, cmd *commands.Command) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	if cmd == nil {
		return errors.New("command repo: nil command")
	}
	parameters := cmd.Parameters
	if len(parameters) == 0 {
		parameters = []byte("{}")
	}
	if !json.Valid(parameters) {
		return errors.New("command repo: invalid parameters")
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO commands (device_id, command_type, parameters, status)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`,
		cmd.DeviceID, cmd.CommandType, parameters, commands.StatusPending,
	).Scan(&cmd.ID, &cmd.CreatedAt)
	if err != nil {
		return err
	}
	cmd.Parameters = parameters
	cmd.Status = commands.StatusPending
	cmd.CreatedAt = cmd.CreatedAt.UTC()
	return nil
}

// ListPending returns up to limit pending commands for a device, oldest
// first. The id tiebreak keeps same-instant inserts in insertion order.
func (r *CommandRepository) ListPending(ctx context.Context, deviceID string, limit int) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, device_id, command_type, parameters, status, created_at, executed_at
FROM commands
WHERE device_id = $1 AND status = $2
ORDER BY created_at ASC, id ASC
LIMIT $3`, deviceID, commands.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []commands.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Complete applies a terminal status scoped by id and device. The single
// UPDATE is the only concurrency control; when onlyPending is false a second
// report matches again and overwrites the first, which reproduces the legacy
// completion behavior.
func (r *CommandRepository) Complete(ctx context.Context, id int64, deviceID, status string, executedAt time.Time, onlyPending bool) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	query := `
UPDATE commands
SET status = $1, executed_at = $2
WHERE id = $3 AND device_id = $4`
	args := []any{status, executedAt, id, deviceID}
	if onlyPending {
		query += ` AND status = $5`
		args = append(args, commands.StatusPending)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// ExpirePendingBefore fails pending commands created before the cutoff.
func (r *CommandRepository) ExpirePendingBefore(ctx context.Context, cutoff, executedAt time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, executed_at = $2
WHERE status = $3 AND created_at < $4`,
		commands.StatusFailed, executedAt, commands.StatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

// DeleteTerminalBefore prunes terminal commands created before the cutoff.
func (r *CommandRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM commands
WHERE status IN ($1, $2) AND created_at < $3`,
		commands.StatusCompleted, commands.StatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

// GetByID fetches a command by id.
func (r *CommandRepository) GetByID(ctx context.Context, id int64) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, device_id, command_type, parameters, status, created_at, executed_at
FROM commands
WHERE id = $1
LIMIT 1`, id)
	return scanCommand(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*commands.Command, error) {
	var cmd commands.Command
	var parameters []byte
	var executedAt sql.NullTime
	if err := row.Scan(
		&cmd.ID,
		&cmd.DeviceID,
		&cmd.CommandType,
		&parameters,
		&cmd.Status,
		&cmd.CreatedAt,
		&executedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cmd.Parameters = parameters
	cmd.CreatedAt = cmd.CreatedAt.UTC()
	if executedAt.Valid {
		cmd.ExecutedAt = executedAt.Time.UTC()
	}
	return &cmd, nil
}
