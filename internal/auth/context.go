package auth

import "context"

type contextKey string

const (
	contextKeyUserID contextKey = "auth.user_id"
	contextKeyEmail  contextKey = "auth.email"
)

// WithUser stores the authenticated user identity in context.
func WithUser(ctx context.Context, userID int64, email string) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID, userID)
	ctx = context.WithValue(ctx, contextKeyEmail, email)
	return ctx
}

// UserIDFromContext extracts the authenticated user id from context.
func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if userID, ok := ctx.Value(contextKeyUserID).(int64); ok {
		return userID
	}
	return 0
}

// EmailFromContext extracts the authenticated email from context.
func EmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if email, ok := ctx.Value(contextKeyEmail).(string); ok {
		return email
	}
	return ""
}
