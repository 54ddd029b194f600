package telemetry

import (
	"context"
	"time"
)

// Reading is one sensor sample reported by a device.
type Reading struct {
	ID         int64
	DeviceID   string
	SensorType string
	Value      float64
	Unit       string
	RecordedAt time.Time
}

// Repository persists readings.
type Repository interface {
	// InsertReadings stores a batch atomically.
	InsertReadings(ctx context.Context, readings []Reading) error
}

// Query serves dashboard reads.
type Query interface {
	// Latest returns the newest reading per sensor type for a device.
	Latest(ctx context.Context, deviceID string) ([]Reading, error)
	// History returns readings since the given time, newest first, capped at
	// limit. sensorType filters when non-empty.
	History(ctx context.Context, deviceID string, since time.Time, sensorType string, limit int) ([]Reading, error)
}

// Sink receives accepted readings, e.g. a time-series mirror.
type Sink interface {
	WriteReadings(ctx context.Context, readings []Reading) error
}
