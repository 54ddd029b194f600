package memory

import (
	"context"
	"sync"
	"time"

	devices "greenhouse-cloud/internal/devices/domain"
)

// DeviceRepository is an in-memory repository for devices.
type DeviceRepository struct {
	mu     sync.RWMutex
	nextID int64
	data   map[string]*devices.Device
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{data: make(map[string]*devices.Device)}
}

// Create inserts a device and assigns its numeric id.
func (r *DeviceRepository) Create(ctx context.Context, device *devices.Device) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[device.DeviceID]; ok {
		return devices.ErrAlreadyRegistered
	}
	r.nextID++
	device.ID = r.nextID
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	clone := *device
	r.data[device.DeviceID] = &clone
	return nil
}

// GetByDeviceID fetches a device by its external identifier.
func (r *DeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*devices.Device, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, ok := r.data[deviceID]
	if !ok {
		return nil, nil
	}
	clone := *device
	return &clone, nil
}

// ListByUser lists a user's devices.
func (r *DeviceRepository) ListByUser(ctx context.Context, userID int64) ([]devices.Device, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []devices.Device
	for _, device := range r.data {
		if device.UserID == userID {
			result = append(result, *device)
		}
	}
	return result, nil
}

// Update applies a partial update scoped by device id and owner.
func (r *DeviceRepository) Update(ctx context.Context, userID int64, deviceID string, fields devices.UpdateFields) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.data[deviceID]
	if !ok || device.UserID != userID {
		return false, nil
	}
	if fields.Name != nil {
		device.Name = *fields.Name
	}
	if fields.Location != nil {
		device.Location = *fields.Location
	}
	if fields.Active != nil {
		device.Active = *fields.Active
	}
	return true, nil
}

// Delete removes a device scoped by owner.
func (r *DeviceRepository) Delete(ctx context.Context, userID int64, deviceID string) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.data[deviceID]
	if !ok || device.UserID != userID {
		return false, nil
	}
	delete(r.data, deviceID)
	return true, nil
}

// TouchLastSeen stamps last_seen for a device reporting in.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if device, ok := r.data[deviceID]; ok {
		device.LastSeen = at
	}
	return nil
}
