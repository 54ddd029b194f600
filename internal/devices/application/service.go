package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	devices "greenhouse-cloud/internal/devices/domain"
)

// RegisterRequest carries a device registration.
type RegisterRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Service handles the owner-facing device registry.
type Service struct {
	repo devices.Repository
}

// NewService constructs a device service.
func NewService(repo devices.Repository) (*Service, error) {
	if repo == nil {
		return nil, errors.New("devices: nil repo")
	}
	return &Service{repo: repo}, nil
}

// Register creates a device owned by userID and mints its capability token.
func (s *Service) Register(ctx context.Context, userID int64, req RegisterRequest) (*devices.Device, error) {
	if req.DeviceID == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: device_id and name required", devices.ErrValidation)
	}
	device := &devices.Device{
		DeviceID: req.DeviceID,
		UserID:   userID,
		Name:     req.Name,
		Location: req.Location,
		Active:   true,
		APIToken: uuid.NewString(),
	}
	if err := s.repo.Create(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// List returns the user's devices.
func (s *Service) List(ctx context.Context, userID int64) ([]devices.Device, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Update applies a partial update to an owned device.
func (s *Service) Update(ctx context.Context, userID int64, deviceID string, fields devices.UpdateFields) error {
	if fields.Name == nil && fields.Location == nil && fields.Active == nil {
		return fmt.Errorf("%w: no fields to update", devices.ErrValidation)
	}
	updated, err := s.repo.Update(ctx, userID, deviceID, fields)
	if err != nil {
		return err
	}
	if !updated {
		return devices.ErrNotFound
	}
	return nil
}

// Delete removes an owned device and, by cascade, everything referencing it.
func (s *Service) Delete(ctx context.Context, userID int64, deviceID string) error {
	deleted, err := s.repo.Delete(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if !deleted {
		return devices.ErrNotFound
	}
	return nil
}

// EnsureOwner confirms the device exists and belongs to userID. Absent and
// foreign devices both come back as ErrNotFound so callers cannot probe for
// existence.
func (s *Service) EnsureOwner(ctx context.Context, userID int64, deviceID string) error {
	device, err := s.repo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil || device.UserID != userID {
		return devices.ErrNotFound
	}
	return nil
}
