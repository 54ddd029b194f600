package devices

import (
	"context"
	"time"
)

// Device is a registered greenhouse monitor owned by exactly one user.
type Device struct {
	ID       int64
	DeviceID string
	UserID   int64
	Name     string
	Location string
	Active   bool
	// APIToken is the capability credential minted at registration. Only
	// checked when device token enforcement is enabled.
	APIToken  string
	LastSeen  time.Time
	CreatedAt time.Time
}

// UpdateFields carries a partial device update; nil fields are untouched.
type UpdateFields struct {
	Name     *string
	Location *string
	Active   *bool
}

// Repository persists devices.
type Repository interface {
	Create(ctx context.Context, device *Device) error
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	ListByUser(ctx context.Context, userID int64) ([]Device, error)
	// Update applies fields to the device matching deviceID and userID.
	// Returns false when no row matched.
	Update(ctx context.Context, userID int64, deviceID string, fields UpdateFields) (bool, error)
	// Delete removes the device matching deviceID and userID, cascading to
	// its commands, telemetry and alarm rules. Returns false when no row
	// matched.
	Delete(ctx context.Context, userID int64, deviceID string) (bool, error)
	// TouchLastSeen stamps last_seen for a device reporting in.
	TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error
}
