package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	commands "greenhouse-cloud/internal/commands/domain"
)

// CommandRepository is an in-memory repository for commands.
type CommandRepository struct {
	mu     sync.Mutex
	nextID int64
	data   map[int64]*commands.Command
}

// NewCommandRepository constructs a repository.
func NewCommandRepository() *CommandRepository {
	return &CommandRepository{data: make(map[int64]*commands.Command)}
}

// Create inserts a pending command and assigns its id.
func (r *CommandRepository) Create(ctx context.Context, cmd *commands.Command) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cmd.ID = r.nextID
	cmd.Status = commands.StatusPending
	if len(cmd.Parameters) == 0 {
		cmd.Parameters = []byte("{}")
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	clone := *cmd
	r.data[cmd.ID] = &clone
	return nil
}

// ListPending returns up to limit pending commands for a device, oldest
// first with id as tiebreak.
func (r *CommandRepository) ListPending(ctx context.Context, deviceID string, limit int) ([]commands.Command, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []commands.Command
	for _, cmd := range r.data {
		if cmd.DeviceID == deviceID && cmd.Status == commands.StatusPending {
			result = append(result, *cmd)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Complete applies a terminal status scoped by id and device.
func (r *CommandRepository) Complete(ctx context.Context, id int64, deviceID, status string, executedAt time.Time, onlyPending bool) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.data[id]
	if !ok || cmd.DeviceID != deviceID {
		return false, nil
	}
	if onlyPending && cmd.Status != commands.StatusPending {
		return false, nil
	}
	cmd.Status = status
	cmd.ExecutedAt = executedAt
	return true, nil
}

// ExpirePendingBefore fails pending commands created before the cutoff.
func (r *CommandRepository) ExpirePendingBefore(ctx context.Context, cutoff, executedAt time.Time) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, cmd := range r.data {
		if cmd.Status == commands.StatusPending && cmd.CreatedAt.Before(cutoff) {
			cmd.Status = commands.StatusFailed
			cmd.ExecutedAt = executedAt
			count++
		}
	}
	return count, nil
}

// DeleteTerminalBefore prunes terminal commands created before the cutoff.
func (r *CommandRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, cmd := range r.data {
		if cmd.Status != commands.StatusPending && cmd.CreatedAt.Before(cutoff) {
			delete(r.data, id)
			count++
		}
	}
	return count, nil
}

// GetByID fetches a command by id, for assertion convenience.
func (r *CommandRepository) GetByID(ctx context.Context, id int64) (*commands.Command, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	clone := *cmd
	return &clone, nil
}

// Count reports the number of stored commands, for assertion convenience.
func (r *CommandRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}
