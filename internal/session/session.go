// Package session holds the per-request session context, the signed session
// tokens and the auth-state broker.
package session

import (
	"context"
	"time"

	"github.com/uniapp/backend/internal/models"
)

// Identity is who the auth service says the visitor is.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Session is created by the gate for each authenticated request. Profile is
// fetched once per request and is nil when the fetch failed.
type Session struct {
	Identity  Identity
	Profile   *models.Profile
	TokenID   string
	ExpiresAt time.Time
}

func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.Identity.UserID
}

type contextKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by the gate, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
