package commands

import (
	"context"
	"encoding/json"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// PendingPollLimit bounds how many commands a single poll may return.
const PendingPollLimit = 10

// Command is a queued device action with a pending-to-terminal lifecycle.
type Command struct {
	ID          int64
	DeviceID    string
	CommandType string
	Parameters  json.RawMessage
	Status      string
	CreatedAt   time.Time
	ExecutedAt  time.Time
}

// TerminalStatus maps a device-reported success flag to a terminal status.
func TerminalStatus(success bool) string {
	if success {
		return StatusCompleted
	}
	return StatusFailed
}

// Repository persists commands.
type Repository interface {
	// Create inserts a pending command and assigns its id.
	Create(ctx context.Context, cmd *Command) error
	// ListPending returns up to limit pending commands for a device, oldest
	// first.
	ListPending(ctx context.Context, deviceID string, limit int) ([]Command, error)
	// Complete applies a terminal status to the command matching id and
	// deviceID, stamping executedAt. When onlyPending is set the update also
	// requires the current status to be pending. Returns false when no row
	// matched.
	Complete(ctx context.Context, id int64, deviceID, status string, executedAt time.Time, onlyPending bool) (bool, error)
	// ExpirePendingBefore fails pending commands created before the cutoff.
	ExpirePendingBefore(ctx context.Context, cutoff, executedAt time.Time) (int, error)
	// DeleteTerminalBefore prunes terminal commands created before the cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
