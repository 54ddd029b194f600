package memory

import (
	"context"
	"sync"
	"time"

	users "greenhouse-cloud/internal/users/domain"
)

// UserRepository is an in-memory repository for users.
type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	data   map[string]*users.User
}

// NewUserRepository constructs a repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{data: make(map[string]*users.User)}
}

// Create inserts a user and assigns its id.
func (r *UserRepository) Create(ctx context.Context, user *users.User) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[user.Email]; ok {
		return users.ErrEmailTaken
	}
	r.nextID++
	user.ID = r.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	clone := *user
	r.data[user.Email] = &clone
	return nil
}

// FindByEmail returns nil when no user matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.data[email]
	if !ok {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}

// RecordLogin stamps last_login.
func (r *UserRepository) RecordLogin(ctx context.Context, userID int64, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.data {
		if user.ID == userID {
			user.LastLogin = at
			return nil
		}
	}
	return nil
}
