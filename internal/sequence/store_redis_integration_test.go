//go:build integration

package sequence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assurly/internal/sequence"
	id "assurly/pkg/domain"
	"assurly/pkg/testutil/containers"
)

func TestRedisStore_Increment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	store := sequence.NewRedisStore(rc.Client)

	ctx := context.Background()
	tenantID := id.TenantID(uuid.New())
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	n, err := store.Increment(ctx, tenantID, "DEV", day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Increment(ctx, tenantID, "DEV", day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.Increment(ctx, tenantID, "DEV", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new day starts its own counter")
}

func TestRedisStore_ConcurrentIncrements(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)
	store := sequence.NewRedisStore(rc.Client)

	ctx := context.Background()
	tenantID := id.TenantID(uuid.New())
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	const goroutines = 50

	var wg sync.WaitGroup
	results := make(chan int64, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.Increment(ctx, tenantID, "POL", day)
			if err == nil {
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for n := range results {
		assert.False(t, seen[n], "counter value %d handed out twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, goroutines)
}
