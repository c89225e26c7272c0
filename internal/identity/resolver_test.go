package identity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
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

func TestResolve_AuthenticatedUser(t *testing.T) {
	s := setupStore(t)
	r := NewResolver(s, WithKeyGenerator(testutil.NewFixedKeyGenerator()))

	res, err := r.Resolve(context.Background(), Request{UserID: "42", SessionKey: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, ledger.UserScope("42"), res.Scope)
	assert.False(t, res.Created)

	// No session row was written.
	ok, err := s.SessionExists(context.Background(), "ignored")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_NoKeyCreatesSession(t *testing.T) {
	s := setupStore(t)
	r := NewResolver(s,
		WithKeyGenerator(testutil.NewFixedKeyGenerator("sess-1")),
		WithClock(testutil.NewStepClock(testutil.DefaultStart, 0).Now),
	)
	ctx := context.Background()

	res, err := r.Resolve(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, ledger.SessionScope("sess-1"), res.Scope)
	assert.True(t, res.Created)

	ok, err := s.SessionExists(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// The returned key resolves to the same scope without creating another.
	again, err := r.Resolve(ctx, Request{SessionKey: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, res.Scope, again.Scope)
	assert.False(t, again.Created)
}

func TestResolve_UnknownKeyCreatesFreshSession(t *testing.T) {
	s := setupStore(t)
	r := NewResolver(s, WithKeyGenerator(testutil.NewFixedKeyGenerator("fresh")))

	res, err := r.Resolve(context.Background(), Request{SessionKey: "forged"})
	require.NoError(t, err)
	assert.Equal(t, ledger.SessionScope("fresh"), res.Scope)
	assert.True(t, res.Created)
}

func TestResolve_DistinctSessionsAreDistinctScopes(t *testing.T) {
	s := setupStore(t)
	r := NewResolver(s, WithKeyGenerator(testutil.NewCountingKeyGenerator("s")))
	ctx := context.Background()

	a, err := r.Resolve(ctx, Request{})
	require.NoError(t, err)
	b, err := r.Resolve(ctx, Request{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Scope, b.Scope)
}

func TestResolve_DefaultGeneratorProducesUUIDv7(t *testing.T) {
	s := setupStore(t)
	r := NewResolver(s)

	res, err := r.Resolve(context.Background(), Request{})
	require.NoError(t, err)
	id, err := uuid.Parse(res.Scope.Key)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

type failingSessions struct {
	existsErr error
	createErr error
}

func (f failingSessions) SessionExists(context.Context, string) (bool, error) {
	return false, f.existsErr
}

func (f failingSessions) CreateSession(context.Context, string, time.Time) error {
	return f.createErr
}

func TestResolve_StoreFailureIsIdentityUnavailable(t *testing.T) {
	boom := errors.New("disk gone")
	tests := []struct {
		name     string
		sessions failingSessions
		req      Request
	}{
		{"lookup fails", failingSessions{existsErr: boom}, Request{SessionKey: "k"}},
		{"create fails", failingSessions{createErr: boom}, Request{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.sessions, WithKeyGenerator(testutil.NewFixedKeyGenerator("k2")))
			_, err := r.Resolve(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrIdentityUnavailable)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const n = 100

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k := gen.Generate()
			mu.Lock()
			defer mu.Unlock()
			seen[k] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
