package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
)

func TestGenerator_Format(t *testing.T) {
	gen := New(NewInMemoryStore(), 5)
	tenant := id.NewTenantID()
	day := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	got, err := gen.Next(context.Background(), tenant, "POL", day)
	require.NoError(t, err)
	assert.Equal(t, "POL-20260314-000001", got)

	got, err = gen.Next(context.Background(), tenant, "POL", day)
	require.NoError(t, err)
	assert.Equal(t, "POL-20260314-000002", got)
}

func TestGenerator_ScopesAreIndependent(t *testing.T) {
	gen := New(NewInMemoryStore(), 5)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)
	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()

	t.Run("per prefix", func(t *testing.T) {
		pol, err := gen.Next(context.Background(), tenantA, "POL", day)
		require.NoError(t, err)
		ord, err := gen.Next(context.Background(), tenantA, "ORD", day)
		require.NoError(t, err)
		assert.Equal(t, "POL-20260314-000001", pol)
		assert.Equal(t, "ORD-20260314-000001", ord)
	})

	t.Run("per day", func(t *testing.T) {
		got, err := gen.Next(context.Background(), tenantA, "POL", nextDay)
		require.NoError(t, err)
		assert.Equal(t, "POL-20260315-000001", got)
	})

	t.Run("per tenant", func(t *testing.T) {
		got, err := gen.Next(context.Background(), tenantB, "POL", day)
		require.NoError(t, err)
		assert.Equal(t, "POL-20260314-000001", got)
	})
}

// TestGenerator_ConcurrentUniqueness is the invariant that motivated the
// atomic counter: under concurrent generation every number must be distinct.
func TestGenerator_ConcurrentUniqueness(t *testing.T) {
	gen := New(NewInMemoryStore(), 5)
	tenant := id.NewTenantID()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	const workers = 50
	const perWorker = 20

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				num, err := gen.Next(context.Background(), tenant, "DEV", day)
				assert.NoError(t, err)
				mu.Lock()
				assert.False(t, seen[num], "duplicate document number %s", num)
				seen[num] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

type conflictingStore struct {
	failures int
	calls    int
}

func (s *conflictingStore) Increment(context.Context, id.TenantID, string, time.Time) (int64, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, sentinel.ErrConflict
	}
	return int64(s.calls), nil
}

func TestGenerator_RetriesAndExhaustion(t *testing.T) {
	tenant := id.NewTenantID()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	t.Run("recovers from transient conflicts", func(t *testing.T) {
		store := &conflictingStore{failures: 2}
		gen := New(store, 5)
		got, err := gen.Next(context.Background(), tenant, "REC", day)
		require.NoError(t, err)
		assert.Equal(t, "REC-20260314-000003", got)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := &conflictingStore{failures: 100}
		gen := New(store, 3)
		_, err := gen.Next(context.Background(), tenant, "REC", day)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExhausted))
		assert.Equal(t, 3, store.calls)
	})
}

type fixedStore struct{ value int64 }

func (s fixedStore) Increment(context.Context, id.TenantID, string, time.Time) (int64, error) {
	return s.value, nil
}

func TestGenerator_SequenceOverflow(t *testing.T) {
	gen := New(fixedStore{value: 1000000}, 5)
	_, err := gen.Next(context.Background(), id.NewTenantID(), "POL", time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExhausted))
}

func TestGenerator_InputValidation(t *testing.T) {
	gen := New(NewInMemoryStore(), 5)

	_, err := gen.Next(context.Background(), id.NewTenantID(), "", time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = gen.Next(context.Background(), id.TenantID{}, "POL", time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGenerator_HonorsCancelledContext(t *testing.T) {
	gen := New(NewInMemoryStore(), 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Next(ctx, id.NewTenantID(), "POL", time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.True(t, errors.Is(err, context.Canceled))
}
