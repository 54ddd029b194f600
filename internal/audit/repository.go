package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository writes audit entries to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log persists an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	metadata := entry.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_log (id, actor, action, resource_type, resource_id, device_id, metadata, ip, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.Actor, entry.Action, entry.ResourceType, nullString(entry.ResourceID),
		nullString(entry.DeviceID), metadata, nullString(entry.IP), nullString(entry.UserAgent), entry.CreatedAt)
	return err
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
