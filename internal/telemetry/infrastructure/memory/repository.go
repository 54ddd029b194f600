package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// TelemetryRepository is an in-memory store used by tests.
type TelemetryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	readings []telemetry.Reading
}

// NewTelemetryRepository constructs an empty repository.
func NewTelemetryRepository() *TelemetryRepository {
	return &TelemetryRepository{}
}

// InsertReadings stores a batch.
func (r *TelemetryRepository) InsertReadings(_ context.Context, readings []telemetry.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reading := range readings {
		r.nextID++
		reading.ID = r.nextID
		if reading.RecordedAt.IsZero() {
			reading.RecordedAt = time.Now().UTC()
		}
		r.readings = append(r.readings, reading)
	}
	return nil
}

// Latest returns the newest reading per sensor type for a device.
func (r *TelemetryRepository) Latest(_ context.Context, deviceID string) ([]telemetry.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[string]telemetry.Reading)
	for _, reading := range r.readings {
		if reading.DeviceID != deviceID {
			continue
		}
		current, ok := latest[reading.SensorType]
		if !ok || reading.RecordedAt.After(current.RecordedAt) {
			latest[reading.SensorType] = reading
		}
	}

	result := make([]telemetry.Reading, 0, len(latest))
	for _, reading := range latest {
		result = append(result, reading)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SensorType < result[j].SensorType })
	return result, nil
}

// History returns readings since the given time, newest first.
func (r *TelemetryRepository) History(_ context.Context, deviceID string, since time.Time, sensorType string, limit int) ([]telemetry.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []telemetry.Reading
	for _, reading := range r.readings {
		if reading.DeviceID != deviceID || reading.RecordedAt.Before(since) {
			continue
		}
		if sensorType != "" && reading.SensorType != sensorType {
			continue
		}
		result = append(result, reading)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RecordedAt.After(result[j].RecordedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the number of stored readings.
func (r *TelemetryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readings)
}
