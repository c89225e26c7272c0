package identity

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/storefront/internal/ledger"
)

// SessionStore persists anonymous sessions. *store.Store implements it.
type SessionStore interface {
	SessionExists(ctx context.Context, key string) (bool, error)
	CreateSession(ctx context.Context, key string, createdAt time.Time) error
}

// Request carries the caller identity as the transport parsed it.
// Both fields are optional.
type Request struct {
	UserID     string
	SessionKey string
}

// Resolution is the resolved owner of the request.
type Resolution struct {
	Scope ledger.Scope

	// Created is true when a new anonymous session was started and
	// Scope.Key must be returned to the client.
	Created bool
}

// Resolver maps requests to scopes.
type Resolver struct {
	sessions SessionStore
	keys     KeyGenerator
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithKeyGenerator replaces the default UUIDv7 session key generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(r *Resolver) {
		r.keys = g
	}
}

// WithClock replaces time.Now for session creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a Resolver backed by sessions.
func NewResolver(sessions SessionStore, opts ...Option) *Resolver {
	r := &Resolver{
		sessions: sessions,
		keys:     UUIDv7Generator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the scope owning req.
//
// Failures of the session store are reported as ledger.ErrIdentityUnavailable
// and are not retried.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	const op = "identity.resolve"

	if id := strings.TrimSpace(req.UserID); id != "" {
		return Resolution{Scope: ledger.UserScope(id)}, nil
	}

	if key := strings.TrimSpace(req.SessionKey); key != "" {
		ok, err := r.sessions.SessionExists(ctx, key)
		if err != nil {
			return Resolution{}, ledger.Wrap(ledger.CodeIdentityUnavailable, op, err)
		}
		if ok {
			return Resolution{Scope: ledger.SessionScope(key)}, nil
		}
		slog.Debug("unknown session key, starting new session")
	}

	key := r.keys.Generate()
	if strings.TrimSpace(key) == "" {
		return Resolution{}, ledger.E(ledger.CodeIdentityUnavailable, op, "empty session key generated")
	}
	if err := r.sessions.CreateSession(ctx, key, r.now().UTC()); err != nil {
		return Resolution{}, ledger.Wrap(ledger.CodeIdentityUnavailable, op, err)
	}
	slog.Debug("session created", "session", key)
	return Resolution{Scope: ledger.SessionScope(key), Created: true}, nil
}
