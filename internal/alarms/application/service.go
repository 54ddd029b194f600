package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	alarms "greenhouse-cloud/internal/alarms/domain"
	"greenhouse-cloud/internal/alarms/notify"
	devices "greenhouse-cloud/internal/devices/domain"
	"greenhouse-cloud/internal/observability/metrics"
	telemetryapp "greenhouse-cloud/internal/telemetry/application"
)

// OwnerChecker verifies that a user owns a device.
type OwnerChecker interface {
	EnsureOwner(ctx context.Context, userID int64, deviceID string) error
}

const alarmListLimit = 100

// Service evaluates telemetry against owner-defined threshold rules and
// records alarms.
type Service struct {
	repo     alarms.Repository
	owners   OwnerChecker
	notifier notify.Notifier
	logger   *log.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithNotifier delivers raised alarms to an external channel. Delivery
// failures are logged, never surfaced.
func WithNotifier(notifier notify.Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the alarm service.
func NewService(repo alarms.Repository, owners OwnerChecker, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alarm service: nil repository")
	}
	if owners == nil {
		return nil, errors.New("alarm service: nil owner checker")
	}
	s := &Service{repo: repo, owners: owners, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ensureOwner folds absent and foreign devices into one not-found answer.
func (s *Service) ensureOwner(ctx context.Context, userID int64, deviceID string) error {
	err := s.owners.EnsureOwner(ctx, userID, deviceID)
	if errors.Is(err, devices.ErrNotFound) {
		return alarms.ErrNotFound
	}
	return err
}

// RuleRequest defines a threshold rule.
type RuleRequest struct {
	DeviceID   string   `json:"device_id"`
	SensorType string   `json:"sensor_type"`
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
}

// CreateRule stores a rule after an ownership check.
func (s *Service) CreateRule(ctx context.Context, userID int64, req RuleRequest) (*alarms.Rule, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id required", alarms.ErrValidation)
	}
	if req.SensorType == "" {
		return nil, fmt.Errorf("%w: sensor_type required", alarms.ErrValidation)
	}
	if req.Min == nil && req.Max == nil {
		return nil, fmt.Errorf("%w: at least one of min or max required", alarms.ErrValidation)
	}
	if req.Min != nil && req.Max != nil && *req.Min > *req.Max {
		return nil, fmt.Errorf("%w: min exceeds max", alarms.ErrValidation)
	}
	if err := s.ensureOwner(ctx, userID, req.DeviceID); err != nil {
		return nil, err
	}

	rule := &alarms.Rule{
		DeviceID:   req.DeviceID,
		SensorType: req.SensorType,
		Min:        req.Min,
		Max:        req.Max,
		Enabled:    true,
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules returns a device's rules after an ownership check.
func (s *Service) ListRules(ctx context.Context, userID int64, deviceID string) ([]alarms.Rule, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id required", alarms.ErrValidation)
	}
	if err := s.ensureOwner(ctx, userID, deviceID); err != nil {
		return nil, err
	}
	return s.repo.ListRules(ctx, deviceID, false)
}

// DeleteRule removes a rule after an ownership check.
func (s *Service) DeleteRule(ctx context.Context, userID int64, deviceID string, ruleID int64) error {
	if deviceID == "" || ruleID <= 0 {
		return fmt.Errorf("%w: device_id and rule id required", alarms.ErrValidation)
	}
	if err := s.ensureOwner(ctx, userID, deviceID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteRule(ctx, deviceID, ruleID)
	if err != nil {
		return err
	}
	if !deleted {
		return alarms.ErrNotFound
	}
	return nil
}

// ListAlarms returns a device's recent alarms after an ownership check.
func (s *Service) ListAlarms(ctx context.Context, userID int64, deviceID string) ([]alarms.Alarm, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id required", alarms.ErrValidation)
	}
	if err := s.ensureOwner(ctx, userID, deviceID); err != nil {
		return nil, err
	}
	return s.repo.ListAlarms(ctx, deviceID, alarmListLimit)
}

// HandleTelemetry evaluates an accepted batch against the device's enabled
// rules. Wired as an event bus subscriber for TelemetryReceived.
func (s *Service) HandleTelemetry(ctx context.Context, event any) error {
	received, ok := event.(telemetryapp.TelemetryReceived)
	if !ok {
		return nil
	}

	rules, err := s.repo.ListRules(ctx, received.DeviceID, true)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	bySensor := make(map[string]alarms.Rule, len(rules))
	for _, rule := range rules {
		bySensor[rule.SensorType] = rule
	}

	for _, reading := range received.Readings {
		rule, ok := bySensor[reading.SensorType]
		if !ok {
			continue
		}
		alarm := rule.Evaluate(reading.Value, received.ReceivedAt)
		if alarm == nil {
			continue
		}
		if err := s.repo.RecordAlarm(ctx, alarm); err != nil {
			s.logger.Printf("alarms: record device=%s sensor=%s: %v", alarm.DeviceID, alarm.SensorType, err)
			continue
		}
		metrics.IncAlarmRaised()
		s.logger.Printf("alarms: raised device=%s sensor=%s value=%.2f threshold=%.2f direction=%s",
			alarm.DeviceID, alarm.SensorType, alarm.Value, alarm.Threshold, alarm.Direction)

		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, *alarm); err != nil {
				s.logger.Printf("alarms: notify device=%s: %v", alarm.DeviceID, err)
			}
		}
	}
	return nil
}
