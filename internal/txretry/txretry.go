// Package txretry commits one storage transaction, retrying it with bounded
// exponential backoff while the store reports write contention.
//
// Every attempt is a fresh transaction: a contended attempt is rolled back
// in full before the next begins, so fn must be safe to run more than once
// and must not publish anything until Commit returns nil.
package txretry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/store"
)

// Default policy values.
const (
	DefaultAttempts       = 8
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
)

// TxRunner runs fn in one transaction. *store.Store implements it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Policy bounds the retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// InitialBackoff is the wait after the first contended attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the doubling wait.
	MaxBackoff time.Duration
}

// DefaultPolicy returns 8 attempts starting at 100ms, capped at 2s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       DefaultAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	b := p.exponential()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// exponential returns a fresh, jitter-free doubling schedule with no
// elapsed-time limit; the attempt count is the only bound.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// schedule bounds the exponential schedule to the policy's attempts and
// stops it when ctx is done.
func (p Policy) schedule(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(p.Attempts-1)), ctx)
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Handler retries contended transactions.
//
// Safe for concurrent use; all state lives in the runner.
type Handler struct {
	runner       TxRunner
	policy       Policy
	sleep        SleepFunc
	isContention func(error) bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithPolicy replaces the default policy. Attempts below 1 are treated as 1.
func WithPolicy(p Policy) Option {
	return func(h *Handler) {
		if p.Attempts < 1 {
			p.Attempts = 1
		}
		h.policy = p
	}
}

// WithSleep replaces the real timer wait. fn must return nil once d has
// passed or ctx.Err() if ctx ends first. Tests inject a recorder.
func WithSleep(fn SleepFunc) Option {
	return func(h *Handler) {
		h.sleep = fn
	}
}

// New creates a Handler over runner.
func New(runner TxRunner, opts ...Option) *Handler {
	h := &Handler{
		runner:       runner,
		policy:       DefaultPolicy(),
		isContention: store.IsContention,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Policy returns the handler's retry policy.
func (h *Handler) Policy() Policy {
	return h.policy
}

// Commit runs fn in a transaction and commits it.
//
// Errors from fn that are *ledger.Error pass through unchanged, as do
// context errors. Contention is retried until the policy is exhausted,
// which yields ledger.ErrResourceBusy. Any other storage failure is
// wrapped with ledger.CodeStorage.
func (h *Handler) Commit(ctx context.Context, fn func(*store.Tx) error) error {
	const op = "txretry.commit"

	attempt := 0
	operation := func() error {
		attempt++
		err := h.runner.InTx(ctx, fn)
		if err == nil {
			return nil
		}
		var le *ledger.Error
		switch {
		case errors.As(err, &le):
			return backoff.Permanent(err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return backoff.Permanent(err)
		case !h.isContention(err):
			return backoff.Permanent(ledger.Wrap(ledger.CodeStorage, op, err))
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("write contention, retrying",
			"attempt", attempt,
			"max_attempts", h.policy.Attempts,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotifyWithTimer(operation, h.policy.schedule(ctx), notify, h.timer(ctx))
	if err == nil {
		if attempt > 1 {
			slog.Debug("transaction committed after contention", "attempt", attempt)
		}
		return nil
	}

	var le *ledger.Error
	if errors.As(err, &le) || !h.isContention(err) {
		return err
	}
	slog.Warn("write contention retries exhausted",
		"attempts", attempt,
		"error", err,
	)
	return &ledger.Error{
		Code:    ledger.CodeResourceBusy,
		Op:      op,
		Message: fmt.Sprintf("retries exhausted after %d attempts", attempt),
		Err:     err,
	}
}

// timer returns the wait used between attempts. nil selects the library's
// real timer.
func (h *Handler) timer(ctx context.Context) backoff.Timer {
	if h.sleep == nil {
		return nil
	}
	return &sleepTimer{ctx: ctx, sleep: h.sleep}
}

// sleepTimer adapts a SleepFunc to backoff.Timer. The wait runs
// synchronously in Start; C fires unless the wait was cut short by ctx,
// in which case the retry loop observes ctx.Done instead.
type sleepTimer struct {
	ctx   context.Context
	sleep SleepFunc
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.sleep(t.ctx, d); err != nil && t.ctx.Err() != nil {
		return
	}
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time {
	return t.c
}
