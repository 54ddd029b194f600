package users

import (
	"context"
	"time"
)

// User is a registered account owning zero or more devices.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	LastLogin    time.Time
	CreatedAt    time.Time
}

// Repository persists users.
type Repository interface {
	// Create inserts a user and assigns its id.
	Create(ctx context.Context, user *User) error
	// FindByEmail returns nil when no user matches.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// RecordLogin stamps last_login.
	RecordLogin(ctx context.Context, userID int64, at time.Time) error
}
