package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/storefront/internal/store"
)

// BusyError is the driver error a contended SQLite write returns.
var BusyError = sqlite3.Error{Code: sqlite3.ErrBusy}

// TxRunner is the transaction entry point of *store.Store.
type TxRunner interface {
	InTx(ctx context.Context, fn func(*store.Tx) error) error
}

// ContendedRunner wraps a TxRunner and fails the first Failures
// transactions with SQLITE_BUSY after fn has run, so the attempt's writes
// roll back exactly as a lost commit race would.
type ContendedRunner struct {
	Runner TxRunner

	mu       sync.Mutex
	failures int
	attempts int
}

// NewContendedRunner fails the first failures transactions on r.
func NewContendedRunner(r TxRunner, failures int) *ContendedRunner {
	return &ContendedRunner{Runner: r, failures: failures}
}

// InTx runs fn in a real transaction, then forces a rollback with
// BusyError while injected failures remain.
func (c *ContendedRunner) InTx(ctx context.Context, fn func(*store.Tx) error) error {
	return c.Runner.InTx(ctx, func(tx *store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.attempts++
		if c.failures > 0 {
			c.failures--
			return BusyError
		}
		return nil
	})
}

// Attempts returns how many times fn completed without error.
func (c *ContendedRunner) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// SleepRecorder is an injectable sleep that records waits instead of blocking.
type SleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d and returns ctx.Err() if ctx is already done.
func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Waits returns a copy of the recorded waits.
func (s *SleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}
