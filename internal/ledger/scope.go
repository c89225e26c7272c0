package ledger

import (
	"fmt"
	"strings"
)

// ScopeKind distinguishes the two owners a cart or order can have.
type ScopeKind string

const (
	// ScopeUser is an authenticated user, keyed by user id.
	ScopeUser ScopeKind = "user"
	// ScopeSession is an anonymous visitor, keyed by session key.
	ScopeSession ScopeKind = "session"
)

// Scope identifies the owner of cart lines and orders.
// The zero value is not a valid scope.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Key  string    `json:"key"`
}

// UserScope returns the scope of an authenticated user.
func UserScope(id string) Scope {
	return Scope{Kind: ScopeUser, Key: id}
}

// SessionScope returns the scope of an anonymous session.
func SessionScope(key string) Scope {
	return Scope{Kind: ScopeSession, Key: key}
}

// Valid reports whether s names a known kind with a non-empty key.
func (s Scope) Valid() bool {
	if strings.TrimSpace(s.Key) == "" {
		return false
	}
	return s.Kind == ScopeUser || s.Kind == ScopeSession
}

// IsAuthenticated reports whether s belongs to an authenticated user.
func (s Scope) IsAuthenticated() bool {
	return s.Kind == ScopeUser
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Key)
}

// ParseScope parses the "kind:key" form produced by String.
func ParseScope(v string) (Scope, error) {
	kind, key, ok := strings.Cut(v, ":")
	if !ok {
		return Scope{}, fmt.Errorf("scope %q: want kind:key", v)
	}
	s := Scope{Kind: ScopeKind(kind), Key: key}
	if !s.Valid() {
		return Scope{}, fmt.Errorf("scope %q: unknown kind or empty key", v)
	}
	return s, nil
}
