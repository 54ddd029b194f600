package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	commandsapp "greenhouse-cloud/internal/commands/application"
	commands "greenhouse-cloud/internal/commands/domain"
	commandsmem "greenhouse-cloud/internal/commands/infrastructure/memory"
	"greenhouse-cloud/internal/config"
	devicesapp "greenhouse-cloud/internal/devices/application"
	devicesmem "greenhouse-cloud/internal/devices/infrastructure/memory"
)

func newFixture(t *testing.T, completionMode string) (*commandsapp.Service, *commandsmem.CommandRepository, *devicesapp.Service) {
	t.Helper()
	deviceRepo := devicesmem.NewDeviceRepository()
	deviceService, err := devicesapp.NewService(deviceRepo)
	if err != nil {
		t.Fatalf("device service: %v", err)
	}
	repo := commandsmem.NewCommandRepository()
	service, err := commandsapp.NewService(repo, deviceService, completionMode)
	if err != nil {
		t.Fatalf("command service: %v", err)
	}
	return service, repo, deviceService
}

func registerDevice(t *testing.T, service *devicesapp.Service, userID int64, deviceID string) {
	t.Helper()
	_, err := service.Register(context.Background(), userID, devicesapp.RegisterRequest{
		DeviceID: deviceID,
		Name:     "greenhouse-" + deviceID,
	})
	if err != nil {
		t.Fatalf("register device %s: %v", deviceID, err)
	}
}

func TestEnqueue_OwnerOnly(t *testing.T) {
	service, _, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	cmd, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "set_fan_speed",
		Parameters:  json.RawMessage(`{"speed":3}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if cmd.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", cmd.ID)
	}

	// A foreign owner gets the same answer as for a missing device.
	_, foreignErr := service.Enqueue(ctx, 2, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "set_fan_speed",
	})
	_, missingErr := service.Enqueue(ctx, 2, commandsapp.EnqueueRequest{
		DeviceID:    "gh-missing",
		CommandType: "set_fan_speed",
	})
	if !errors.Is(foreignErr, commands.ErrNotFound) {
		t.Fatalf("expected not found for foreign device, got %v", foreignErr)
	}
	if !errors.Is(missingErr, commands.ErrNotFound) {
		t.Fatalf("expected not found for missing device, got %v", missingErr)
	}
	if foreignErr.Error() != missingErr.Error() {
		t.Fatalf("foreign and missing answers differ: %q vs %q", foreignErr, missingErr)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	service, _, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	cases := []commandsapp.EnqueueRequest{
		{DeviceID: "", CommandType: "reboot"},
		{DeviceID: "gh-001", CommandType: ""},
		{DeviceID: "gh-001", CommandType: "reboot", Parameters: json.RawMessage(`{broken`)},
	}
	for _, req := range cases {
		if _, err := service.Enqueue(ctx, 1, req); !errors.Is(err, commands.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestEnqueue_DefaultsParameters(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	cmd, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "reboot",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	stored, err := repo.GetByID(ctx, cmd.ID)
	if err != nil || stored == nil {
		t.Fatalf("get command: %v", err)
	}
	if string(stored.Parameters) != "{}" {
		t.Fatalf("expected empty object parameters, got %s", stored.Parameters)
	}
	if stored.Status != commands.StatusPending {
		t.Fatalf("expected pending, got %s", stored.Status)
	}
}

func TestPoll_FIFOAndBounded(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")
	registerDevice(t, deviceService, 2, "gh-002")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		cmd := &commands.Command{
			DeviceID:    "gh-001",
			CommandType: "step",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, cmd); err != nil {
			t.Fatalf("seed command: %v", err)
		}
	}
	// A neighbor's command must never appear in gh-001's poll.
	if err := repo.Create(ctx, &commands.Command{
		DeviceID:    "gh-002",
		CommandType: "other",
		CreatedAt:   base,
	}); err != nil {
		t.Fatalf("seed neighbor: %v", err)
	}

	list, err := service.Poll(ctx, "gh-001")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(list) != commands.PendingPollLimit {
		t.Fatalf("expected %d commands, got %d", commands.PendingPollLimit, len(list))
	}
	seen := make(map[int64]bool)
	for i, cmd := range list {
		if cmd.DeviceID != "gh-001" {
			t.Fatalf("foreign command in poll: %s", cmd.DeviceID)
		}
		if seen[cmd.ID] {
			t.Fatalf("duplicate id %d in poll", cmd.ID)
		}
		seen[cmd.ID] = true
		if i > 0 && list[i-1].CreatedAt.After(cmd.CreatedAt) {
			t.Fatalf("commands out of order at index %d", i)
		}
	}

	// Poll is read-only: an identical second poll returns the same set.
	again, err := service.Poll(ctx, "gh-001")
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(again) != len(list) {
		t.Fatalf("second poll size changed: %d vs %d", len(again), len(list))
	}
	for i := range list {
		if again[i].ID != list[i].ID {
			t.Fatalf("second poll order changed at %d", i)
		}
	}
}

func TestComplete_Lifecycle(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	cmd, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "open_vent",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := service.Complete(ctx, cmd.ID, "gh-001", true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	stored, _ := repo.GetByID(ctx, cmd.ID)
	if stored.Status != commands.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.ExecutedAt.IsZero() {
		t.Fatal("expected executed_at to be set")
	}

	// The completed command disappears from subsequent polls.
	list, err := service.Poll(ctx, "gh-001")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty poll, got %d", len(list))
	}
}

func TestComplete_Failure(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	cmd, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "open_vent",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := service.Complete(ctx, cmd.ID, "gh-001", false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	stored, _ := repo.GetByID(ctx, cmd.ID)
	if stored.Status != commands.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
}

func TestComplete_ForeignDeviceNotFound(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")
	registerDevice(t, deviceService, 1, "gh-002")

	cmd, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "open_vent",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := service.Complete(ctx, cmd.ID, "gh-002", true); !errors.Is(err, commands.ErrNotFound) {
		t.Fatalf("expected not found for foreign device, got %v", err)
	}
	if err := service.Complete(ctx, cmd.ID+999, "gh-001", true); !errors.Is(err, commands.ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
	stored, _ := repo.GetByID(ctx, cmd.ID)
	if stored.Status != commands.StatusPending {
		t.Fatalf("expected command untouched, got %s", stored.Status)
	}
}

func TestComplete_LegacyModeOverwrites(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	cmd, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "open_vent",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := service.Complete(ctx, cmd.ID, "gh-001", true); err != nil {
		t.Fatalf("first report: %v", err)
	}
	// Legacy mode accepts a second report and overwrites the status.
	if err := service.Complete(ctx, cmd.ID, "gh-001", false); err != nil {
		t.Fatalf("second report: %v", err)
	}
	stored, _ := repo.GetByID(ctx, cmd.ID)
	if stored.Status != commands.StatusFailed {
		t.Fatalf("expected overwrite to failed, got %s", stored.Status)
	}
}

func TestComplete_ClaimModeRejectsSecondReport(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeClaim)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	cmd, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "open_vent",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := service.Complete(ctx, cmd.ID, "gh-001", true); err != nil {
		t.Fatalf("first report: %v", err)
	}
	if err := service.Complete(ctx, cmd.ID, "gh-001", false); !errors.Is(err, commands.ErrNotFound) {
		t.Fatalf("expected not found for second report, got %v", err)
	}
	stored, _ := repo.GetByID(ctx, cmd.ID)
	if stored.Status != commands.StatusCompleted {
		t.Fatalf("expected first report to stick, got %s", stored.Status)
	}
}

func TestExpirePending(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	stale := &commands.Command{
		DeviceID:    "gh-001",
		CommandType: "old",
		CreatedAt:   time.Now().UTC().Add(-2 * time.Hour),
	}
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	fresh, err := service.Enqueue(ctx, 1, commandsapp.EnqueueRequest{
		DeviceID:    "gh-001",
		CommandType: "new",
	})
	if err != nil {
		t.Fatalf("enqueue fresh: %v", err)
	}

	expired, err := service.ExpirePending(ctx, time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired, got %d", expired)
	}
	staleStored, _ := repo.GetByID(ctx, stale.ID)
	if staleStored.Status != commands.StatusFailed {
		t.Fatalf("expected stale failed, got %s", staleStored.Status)
	}
	freshStored, _ := repo.GetByID(ctx, fresh.ID)
	if freshStored.Status != commands.StatusPending {
		t.Fatalf("expected fresh pending, got %s", freshStored.Status)
	}

	// Zero maxAge disables the janitor.
	if count, err := service.ExpirePending(ctx, 0); err != nil || count != 0 {
		t.Fatalf("expected no-op, got count=%d err=%v", count, err)
	}
}

func TestPruneTerminal(t *testing.T) {
	service, repo, deviceService := newFixture(t, config.CompletionModeLegacy)
	ctx := context.Background()
	registerDevice(t, deviceService, 1, "gh-001")

	old := &commands.Command{
		DeviceID:    "gh-001",
		CommandType: "old",
		CreatedAt:   time.Now().UTC().Add(-48 * time.Hour),
	}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := service.Complete(ctx, old.ID, "gh-001", true); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pruned, err := service.PruneTerminal(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}
	if repo.Count() != 0 {
		t.Fatalf("expected empty repo, got %d", repo.Count())
	}
}
