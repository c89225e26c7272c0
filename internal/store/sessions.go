package store

import (
	"context"
	"fmt"
	"time"
)

// SessionExists reports whether key names a stored anonymous session.
func (s *Store) SessionExists(ctx context.Context, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE session_key = ?
	`, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return count > 0, nil
}

// CreateSession stores a new anonymous session.
// Uses ON CONFLICT DO NOTHING - recreating an existing key is a no-op.
func (s *Store) CreateSession(ctx context.Context, key string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_key, created_at)
		VALUES (?, ?)
		ON CONFLICT(session_key) DO NOTHING
	`, key, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}
