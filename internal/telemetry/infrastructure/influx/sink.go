package influx

import (
	"context"
	"errors"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"greenhouse-cloud/internal/config"
	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// Sink mirrors accepted readings to InfluxDB. Postgres stays the source of
// truth; the mirror only feeds time-series dashboards.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewSink constructs a mirror from config.
func NewSink(cfg config.Influx) (*Sink, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx sink: config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Sink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// WriteReadings writes one point per reading.
func (s *Sink) WriteReadings(ctx context.Context, readings []telemetry.Reading) error {
	for _, reading := range readings {
		recordedAt := reading.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now().UTC()
		}
		point := influxdb2.NewPoint(
			reading.SensorType,
			map[string]string{"device_id": reading.DeviceID},
			map[string]any{"value": reading.Value, "unit": reading.Unit},
			recordedAt,
		)
		if err := s.writeAPI.WritePoint(ctx, point); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying client.
func (s *Sink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}
