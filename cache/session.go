package cache

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey struct{}

// Session carries per-run registry settings.
type Session struct {
	// ID is sent as the npm-session header on every registry request.
	ID string

	// NoCache bypasses the disk tarball cache for reads and writes.
	NoCache bool
}

// NewSession creates a session with a fresh 16 hex digit ID.
func NewSession() *Session {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Session{ID: id[:16]}
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, s)
}

// SessionFromContext returns the session attached to ctx, or nil.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
