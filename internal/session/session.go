package session

import (
	"context"

	"example.com/cargomarket/internal/errs"

	"github.com/google/uuid"
)

// Session identifies the authenticated user behind a core operation. The
// mobile edge authenticates the user and forwards the identity; the core
// never reads it from ambient state.
type Session struct {
	UserID uuid.UUID
	Email  string
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a context carrying the session
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext extracts the session from a context
func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok || s.UserID == uuid.Nil {
		return Session{}, errs.Validation("no authenticated session in context")
	}
	return s, nil
}
