package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	alarmsapp "greenhouse-cloud/internal/alarms/application"
	alarms "greenhouse-cloud/internal/alarms/domain"
	alarmsmem "greenhouse-cloud/internal/alarms/infrastructure/memory"
	devicesapp "greenhouse-cloud/internal/devices/application"
	devicesmem "greenhouse-cloud/internal/devices/infrastructure/memory"
	telemetryapp "greenhouse-cloud/internal/telemetry/application"
	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

func ptr(v float64) *float64 { return &v }

type recordingNotifier struct {
	mu     sync.Mutex
	alarms []alarms.Alarm
}

func (n *recordingNotifier) Notify(_ context.Context, alarm alarms.Alarm) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alarms = append(n.alarms, alarm)
	return nil
}

func newFixture(t *testing.T, opts ...alarmsapp.Option) (*alarmsapp.Service, *alarmsmem.AlarmRepository) {
	t.Helper()
	deviceRepo := devicesmem.NewDeviceRepository()
	deviceService, err := devicesapp.NewService(deviceRepo)
	if err != nil {
		t.Fatalf("device service: %v", err)
	}
	if _, err := deviceService.Register(context.Background(), 1, devicesapp.RegisterRequest{
		DeviceID: "gh-001",
		Name:     "north greenhouse",
	}); err != nil {
		t.Fatalf("register device: %v", err)
	}

	repo := alarmsmem.NewAlarmRepository()
	service, err := alarmsapp.NewService(repo, deviceService, opts...)
	if err != nil {
		t.Fatalf("alarm service: %v", err)
	}
	return service, repo
}

func TestCreateRule_Validation(t *testing.T) {
	service, _ := newFixture(t)
	ctx := context.Background()

	cases := []alarmsapp.RuleRequest{
		{DeviceID: "", SensorType: "temperature", Max: ptr(30)},
		{DeviceID: "gh-001", SensorType: "", Max: ptr(30)},
		{DeviceID: "gh-001", SensorType: "temperature"},
		{DeviceID: "gh-001", SensorType: "temperature", Min: ptr(40), Max: ptr(30)},
	}
	for _, req := range cases {
		if _, err := service.CreateRule(ctx, 1, req); !errors.Is(err, alarms.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestCreateRule_OwnershipConflation(t *testing.T) {
	service, _ := newFixture(t)
	ctx := context.Background()

	req := alarmsapp.RuleRequest{DeviceID: "gh-001", SensorType: "temperature", Max: ptr(30)}
	foreignReq := req
	missingReq := alarmsapp.RuleRequest{DeviceID: "gh-404", SensorType: "temperature", Max: ptr(30)}

	_, foreign := service.CreateRule(ctx, 2, foreignReq)
	_, missing := service.CreateRule(ctx, 2, missingReq)
	if !errors.Is(foreign, alarms.ErrNotFound) || !errors.Is(missing, alarms.ErrNotFound) {
		t.Fatalf("expected not found for both, got %v / %v", foreign, missing)
	}

	if _, err := service.CreateRule(ctx, 1, req); err != nil {
		t.Fatalf("owner create: %v", err)
	}
}

func TestHandleTelemetry_RaisesAlarms(t *testing.T) {
	notifier := &recordingNotifier{}
	service, _ := newFixture(t, alarmsapp.WithNotifier(notifier))
	ctx := context.Background()

	if _, err := service.CreateRule(ctx, 1, alarmsapp.RuleRequest{
		DeviceID:   "gh-001",
		SensorType: "temperature",
		Min:        ptr(10),
		Max:        ptr(30),
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	now := time.Now().UTC()
	err := service.HandleTelemetry(ctx, telemetryapp.TelemetryReceived{
		DeviceID: "gh-001",
		Readings: []telemetry.Reading{
			{DeviceID: "gh-001", SensorType: "temperature", Value: 35, Unit: "C"},
			{DeviceID: "gh-001", SensorType: "temperature", Value: 5, Unit: "C"},
			{DeviceID: "gh-001", SensorType: "temperature", Value: 22, Unit: "C"},
			{DeviceID: "gh-001", SensorType: "humidity", Value: 99, Unit: "%"},
		},
		ReceivedAt: now,
	})
	if err != nil {
		t.Fatalf("handle telemetry: %v", err)
	}

	raised, err := service.ListAlarms(ctx, 1, "gh-001")
	if err != nil {
		t.Fatalf("list alarms: %v", err)
	}
	if len(raised) != 2 {
		t.Fatalf("expected 2 alarms, got %d", len(raised))
	}
	directions := map[string]bool{}
	for _, alarm := range raised {
		directions[alarm.Direction] = true
	}
	if !directions[alarms.DirectionAbove] || !directions[alarms.DirectionBelow] {
		t.Fatalf("expected one above and one below, got %+v", directions)
	}
	if len(notifier.alarms) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.alarms))
	}
}

func TestHandleTelemetry_DisabledRuleIgnored(t *testing.T) {
	service, repo := newFixture(t)
	ctx := context.Background()

	rule := &alarms.Rule{DeviceID: "gh-001", SensorType: "temperature", Max: ptr(30), Enabled: false}
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	err := service.HandleTelemetry(ctx, telemetryapp.TelemetryReceived{
		DeviceID:   "gh-001",
		Readings:   []telemetry.Reading{{DeviceID: "gh-001", SensorType: "temperature", Value: 99, Unit: "C"}},
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("handle telemetry: %v", err)
	}
	raised, _ := service.ListAlarms(ctx, 1, "gh-001")
	if len(raised) != 0 {
		t.Fatalf("expected no alarms for disabled rule, got %d", len(raised))
	}
}

func TestDeleteRule(t *testing.T) {
	service, _ := newFixture(t)
	ctx := context.Background()

	rule, err := service.CreateRule(ctx, 1, alarmsapp.RuleRequest{
		DeviceID:   "gh-001",
		SensorType: "temperature",
		Max:        ptr(30),
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	if err := service.DeleteRule(ctx, 1, "gh-001", rule.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := service.DeleteRule(ctx, 1, "gh-001", rule.ID); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
