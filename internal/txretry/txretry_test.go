package txretry

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/store"
	"github.com/roach88/storefront/internal/testutil"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		2 * time.Second,
		2 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Backoff(i+1), "attempt %d", i+1)
	}
}

func TestCommit_SucceedsFirstTry(t *testing.T) {
	s := setupStore(t)
	rec := &testutil.SleepRecorder{}
	h := New(s, WithSleep(rec.Sleep))

	calls := 0
	err := h.Commit(context.Background(), func(*store.Tx) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.Waits())
}

func TestCommit_RetriesContention(t *testing.T) {
	s := setupStore(t)
	runner := testutil.NewContendedRunner(s, 3)
	rec := &testutil.SleepRecorder{}
	h := New(runner, WithSleep(rec.Sleep))
	ctx := context.Background()

	err := h.Commit(ctx, func(tx *store.Tx) error {
		return tx.InsertCartLine(ctx, ledger.CartLine{
			Scope:     ledger.SessionScope("s"),
			ProductID: 1,
			Name:      "Phone",
			Quantity:  1,
			AddedAt:   testutil.DefaultStart,
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 4, runner.Attempts())
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, rec.Waits())

	// Rolled-back attempts left nothing behind; exactly one line exists.
	err = s.InTx(ctx, func(tx *store.Tx) error {
		lines, err := tx.CartLines(ctx, ledger.SessionScope("s"))
		require.NoError(t, err)
		assert.Len(t, lines, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestCommit_ExhaustionIsResourceBusy(t *testing.T) {
	s := setupStore(t)
	runner := testutil.NewContendedRunner(s, 100)
	rec := &testutil.SleepRecorder{}
	h := New(runner, WithSleep(rec.Sleep))

	err := h.Commit(context.Background(), func(*store.Tx) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrResourceBusy)
	assert.True(t, ledger.Retryable(err))
	assert.Contains(t, err.Error(), "retries exhausted after 8 attempts")
	assert.Equal(t, 1, strings.Count(err.Error(), "database is locked"), err.Error())
	assert.Equal(t, DefaultAttempts, runner.Attempts())
	assert.Len(t, rec.Waits(), DefaultAttempts-1)
}

func TestCommit_DomainErrorNotRetried(t *testing.T) {
	s := setupStore(t)
	rec := &testutil.SleepRecorder{}
	h := New(s, WithSleep(rec.Sleep))

	calls := 0
	err := h.Commit(context.Background(), func(*store.Tx) error {
		calls++
		return ledger.E(ledger.CodeNotFound, "cart.set_quantity", "no line")
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.Waits())
}

func TestCommit_OtherFailureWrappedAsStorage(t *testing.T) {
	s := setupStore(t)
	h := New(s)
	boom := errors.New("disk I/O error")

	err := h.Commit(context.Background(), func(*store.Tx) error { return boom })
	assert.ErrorIs(t, err, ledger.ErrStorage)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ledger.Retryable(err))
}

func TestCommit_CancelDuringWait(t *testing.T) {
	s := setupStore(t)
	runner := testutil.NewContendedRunner(s, 100)
	ctx, cancel := context.WithCancel(context.Background())

	h := New(runner, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	err := h.Commit(ctx, func(*store.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runner.Attempts())
}

func TestCommit_RealTimerHonorsContext(t *testing.T) {
	s := setupStore(t)
	runner := testutil.NewContendedRunner(s, 100)
	h := New(runner, WithPolicy(Policy{Attempts: 3, InitialBackoff: time.Minute, MaxBackoff: time.Minute}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := h.Commit(ctx, func(*store.Tx) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, runner.Attempts())
}

func TestCommit_RealTimerRetries(t *testing.T) {
	s := setupStore(t)
	runner := testutil.NewContendedRunner(s, 2)
	h := New(runner, WithPolicy(Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}))

	err := h.Commit(context.Background(), func(*store.Tx) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, runner.Attempts())
}

func TestCommit_SingleAttemptPolicy(t *testing.T) {
	s := setupStore(t)
	runner := testutil.NewContendedRunner(s, 1)
	rec := &testutil.SleepRecorder{}
	h := New(runner, WithSleep(rec.Sleep), WithPolicy(Policy{Attempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))

	err := h.Commit(context.Background(), func(*store.Tx) error { return nil })
	assert.ErrorIs(t, err, ledger.ErrResourceBusy)
	assert.Equal(t, 1, runner.Attempts())
	assert.Empty(t, rec.Waits())
}

func TestWithPolicy_ClampsAttempts(t *testing.T) {
	h := New(nil, WithPolicy(Policy{Attempts: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))
	assert.Equal(t, 1, h.Policy().Attempts)
}

func TestCommit_ConcurrentWritersSerialize(t *testing.T) {
	s := setupStore(t)
	runner := testutil.NewContendedRunner(s, 5)
	h := New(runner, WithSleep((&testutil.SleepRecorder{}).Sleep))
	ctx := context.Background()
	scope := ledger.SessionScope("s")

	require.NoError(t, s.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertCartLine(ctx, ledger.CartLine{
			Scope: scope, ProductID: 1, Name: "Phone", Quantity: 1, AddedAt: testutil.DefaultStart,
		})
	}))

	const writers = 10
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = h.Commit(ctx, func(tx *store.Tx) error {
				line, err := tx.CartLine(ctx, scope, 1)
				if err != nil {
					return err
				}
				_, err = tx.MergeCartLine(ctx, line)
				return err
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, s.InTx(ctx, func(tx *store.Tx) error {
		line, err := tx.CartLine(ctx, scope, 1)
		require.NoError(t, err)
		assert.Equal(t, 1+writers, line.Quantity)
		return nil
	}))
}
