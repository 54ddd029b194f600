package application

import (
	"context"
	"errors"
	"log"
	"time"

	devices "greenhouse-cloud/internal/devices/domain"
	"greenhouse-cloud/internal/observability/metrics"
	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// Publisher dispatches domain events to in-process consumers.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// IngestReading is one sensor sample in an ingest request.
type IngestReading struct {
	SensorType string  `json:"type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
}

// IngestRequest is a batch of samples reported by one device. Devices may
// send a timestamp alongside the batch; the server clock is authoritative,
// so it is accepted and ignored.
type IngestRequest struct {
	DeviceID  string          `json:"device_id"`
	Timestamp string          `json:"timestamp,omitempty"`
	Sensors   []IngestReading `json:"sensors"`
}

// Option customizes the service.
type Option func(*Service)

// WithSink mirrors accepted readings to a secondary store, e.g. InfluxDB.
// Mirror failures are logged, never surfaced to the device.
func WithSink(sink telemetry.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithPublisher publishes TelemetryReceived events after ingest.
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service accepts telemetry from devices and serves dashboard reads.
type Service struct {
	repo      telemetry.Repository
	query     telemetry.Query
	devices   devices.Repository
	sink      telemetry.Sink
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time
}

// NewService constructs the telemetry service.
func NewService(repo telemetry.Repository, query telemetry.Query, deviceRepo devices.Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("telemetry service: nil repository")
	}
	if query == nil {
		return nil, errors.New("telemetry service: nil query")
	}
	if deviceRepo == nil {
		return nil, errors.New("telemetry service: nil device repository")
	}
	s := &Service{
		repo:    repo,
		query:   query,
		devices: deviceRepo,
		logger:  log.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest validates and stores a batch of readings. The reporting device must
// already be registered; its last_seen is stamped on every accepted batch.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (err error) {
	start := s.now()
	accepted := 0
	defer func() {
		metrics.ObserveIngest(err == nil, s.now().Sub(start).Seconds(), accepted)
	}()

	if req.DeviceID == "" {
		return telemetry.ErrValidation
	}
	if len(req.Sensors) == 0 {
		return telemetry.ErrValidation
	}
	for _, reading := range req.Sensors {
		if reading.SensorType == "" || reading.Unit == "" {
			return telemetry.ErrValidation
		}
	}

	device, err := s.devices.GetByDeviceID(ctx, req.DeviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return telemetry.ErrUnknownDevice
	}

	readings := make([]telemetry.Reading, 0, len(req.Sensors))
	for _, reading := range req.Sensors {
		readings = append(readings, telemetry.Reading{
			DeviceID:   req.DeviceID,
			SensorType: reading.SensorType,
			Value:      reading.Value,
			Unit:       reading.Unit,
		})
	}
	if err := s.repo.InsertReadings(ctx, readings); err != nil {
		return err
	}
	accepted = len(readings)

	if err := s.devices.TouchLastSeen(ctx, req.DeviceID, s.now().UTC()); err != nil {
		s.logger.Printf("telemetry: touch last_seen device=%s: %v", req.DeviceID, err)
	}

	if s.sink != nil {
		if err := s.sink.WriteReadings(ctx, readings); err != nil {
			s.logger.Printf("telemetry: mirror write device=%s: %v", req.DeviceID, err)
		}
	}

	if s.publisher != nil {
		event := TelemetryReceived{
			DeviceID:   req.DeviceID,
			Readings:   readings,
			ReceivedAt: s.now().UTC(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Printf("telemetry: publish event device=%s: %v", req.DeviceID, err)
		}
	}
	return nil
}

// Latest returns the newest reading per sensor type for a device.
func (s *Service) Latest(ctx context.Context, deviceID string) ([]telemetry.Reading, error) {
	if deviceID == "" {
		return nil, telemetry.ErrValidation
	}
	return s.query.Latest(ctx, deviceID)
}

// HistoryRequest selects a window of past readings.
type HistoryRequest struct {
	DeviceID   string
	Hours      int
	SensorType string
}

const historyLimit = 1000

// History returns readings over the requested window, newest first.
func (s *Service) History(ctx context.Context, req HistoryRequest) ([]telemetry.Reading, error) {
	if req.DeviceID == "" {
		return nil, telemetry.ErrValidation
	}
	hours := req.Hours
	if hours <= 0 {
		hours = 24
	}
	since := s.now().UTC().Add(-time.Duration(hours) * time.Hour)
	return s.query.History(ctx, req.DeviceID, since, req.SensorType, historyLimit)
}
