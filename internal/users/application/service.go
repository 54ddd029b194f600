package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"greenhouse-cloud/internal/auth"
	users "greenhouse-cloud/internal/users/domain"
)

// Service handles registration and login.
type Service struct {
	repo       users.Repository
	jwtSecret  []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// NewService constructs a user service.
func NewService(repo users.Repository, jwtSecret []byte, tokenTTL time.Duration, bcryptCost int) (*Service, error) {
	if repo == nil {
		return nil, errors.New("users: nil repo")
	}
	if len(jwtSecret) == 0 {
		return nil, errors.New("users: empty jwt secret")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("users: token ttl must be positive")
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, jwtSecret: jwtSecret, tokenTTL: tokenTTL, bcryptCost: bcryptCost}, nil
}

// Register creates a new account and returns its id.
func (s *Service) Register(ctx context.Context, email, password, name string) (int64, error) {
	if email == "" || password == "" {
		return 0, fmt.Errorf("%w: email and password required", users.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return 0, err
	}
	user := &users.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Login verifies credentials and returns a signed token with the user.
// Unknown emails and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (string, *users.User, error) {
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("%w: email and password required", users.ErrValidation)
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, users.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, users.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.repo.RecordLogin(ctx, user.ID, now); err != nil {
		return "", nil, err
	}
	user.LastLogin = now

	token, err := auth.IssueToken(s.jwtSecret, user.ID, user.Email, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
