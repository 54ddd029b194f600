package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commands "greenhouse-cloud/internal/commands/domain"
	"greenhouse-cloud/internal/config"
	devices "greenhouse-cloud/internal/devices/domain"
	"greenhouse-cloud/internal/observability/metrics"
)

// OwnerChecker confirms a device belongs to a user before producer-side
// mutations.
type OwnerChecker interface {
	EnsureOwner(ctx context.Context, userID int64, deviceID string) error
}

// EnqueueRequest carries an owner's command for a device.
type EnqueueRequest struct {
	DeviceID    string          `json:"device_id"`
	CommandType string          `json:"command_type"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Service handles the command dispatch lifecycle.
type Service struct {
	repo           commands.Repository
	owners         OwnerChecker
	completionMode string
}

// NewService constructs a command service.
func NewService(repo commands.Repository, owners OwnerChecker, completionMode string) (*Service, error) {
	if repo == nil {
		return nil, errors.New("commands: nil repo")
	}
	if owners == nil {
		return nil, errors.New("commands: nil owner checker")
	}
	switch completionMode {
	case config.CompletionModeLegacy, config.CompletionModeClaim:
	default:
		return nil, errors.New("commands: invalid completion mode")
	}
	return &Service{repo: repo, owners: owners, completionMode: completionMode}, nil
}

// Enqueue creates a pending command for a device on behalf of its owner.
// Ownership failures come back as not-found so callers cannot distinguish a
// foreign device from a missing one.
func (s *Service) Enqueue(ctx context.Context, userID int64, req EnqueueRequest) (*commands.Command, error) {
	if req.DeviceID == "" || req.CommandType == "" {
		return nil, fmt.Errorf("%w: device_id and command_type required", commands.ErrValidation)
	}
	if len(req.Parameters) > 0 && !json.Valid(req.Parameters) {
		return nil, fmt.Errorf("%w: parameters must be valid json", commands.ErrValidation)
	}
	if err := s.owners.EnsureOwner(ctx, userID, req.DeviceID); err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			return nil, commands.ErrNotFound
		}
		return nil, err
	}

	parameters := req.Parameters
	if len(parameters) == 0 {
		parameters = []byte("{}")
	}
	cmd := &commands.Command{
		DeviceID:    req.DeviceID,
		CommandType: req.CommandType,
		Parameters:  parameters,
	}
	if err := s.repo.Create(ctx, cmd); err != nil {
		return nil, err
	}
	metrics.IncCommandEnqueued()
	return cmd, nil
}

// Poll returns the device's outstanding commands, oldest first, capped at
// PendingPollLimit. Read-only: repeated polls with no intervening completion
// return the same set.
func (s *Service) Poll(ctx context.Context, deviceID string) ([]commands.Command, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id required", commands.ErrValidation)
	}
	metrics.IncCommandPoll()
	return s.repo.ListPending(ctx, deviceID, commands.PendingPollLimit)
}

// Complete records the outcome of one previously polled command. The update
// is scoped by id and the caller's device id; no matching row is reported as
// not-found. In claim mode the command must additionally still be pending.
func (s *Service) Complete(ctx context.Context, id int64, deviceID string, success bool) error {
	if id <= 0 || deviceID == "" {
		return fmt.Errorf("%w: command id and device_id required", commands.ErrValidation)
	}
	status := commands.TerminalStatus(success)
	onlyPending := s.completionMode == config.CompletionModeClaim
	updated, err := s.repo.Complete(ctx, id, deviceID, status, time.Now().UTC(), onlyPending)
	if err != nil {
		return err
	}
	if !updated {
		return commands.ErrNotFound
	}
	metrics.IncCommandResult(status)
	return nil
}

// ExpirePending fails pending commands older than maxAge. Used by the
// optional janitor; a zero maxAge is a no-op.
func (s *Service) ExpirePending(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	count, err := s.repo.ExpirePendingBefore(ctx, now.Add(-maxAge), now)
	if err != nil {
		return count, err
	}
	metrics.AddCommandExpired(count)
	return count, nil
}

// PruneTerminal deletes terminal commands older than retention. A zero
// retention keeps them forever.
func (s *Service) PruneTerminal(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	return s.repo.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-retention))
}
