package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	users "greenhouse-cloud/internal/users/domain"
)

const uniqueViolation = "23505"

// UserRepository is a Postgres implementation for users.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user and assigns its id.
func (r *UserRepository) Create(ctx context.Context, user *users.User) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	if user == nil {
		return errors.New("user repo: nil user")
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO users (email, password_hash, name)
VALUES ($1, $2, $3)
RETURNING id, created_at`,
		user.Email, user.PasswordHash, nullString(user.Name),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return users.ErrEmailTaken
		}
		return err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return nil
}

// FindByEmail returns nil when no user matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, name, last_login, created_at
FROM users
WHERE email = $1
LIMIT 1`, email)

	var user users.User
	var name sql.NullString
	var lastLogin sql.NullTime
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &name, &lastLogin, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if name.Valid {
		user.Name = name.String
	}
	if lastLogin.Valid {
		user.LastLogin = lastLogin.Time.UTC()
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// RecordLogin stamps last_login.
func (r *UserRepository) RecordLogin(ctx context.Context, userID int64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE users
SET last_login = $1
WHERE id = $2`, at, userID)
	return err
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
