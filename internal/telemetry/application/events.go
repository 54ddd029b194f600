package application

import (
	"time"

	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// TelemetryReceived is published on the in-process bus after a batch of
// readings has been accepted and stored.
type TelemetryReceived struct {
	DeviceID   string
	Readings   []telemetry.Reading
	ReceivedAt time.Time
}
