package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"food-search-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRepo(t *testing.T, sweep time.Duration) *RequestStateRepository {
	t.Helper()
	r := NewRequestStateRepository(time.Minute, sweep)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSetGetExpire(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t, time.Hour)

	s := store.NewRequestState("req-1", "sess-1", "", "tacos")
	require.NoError(t, r.Set(ctx, "req-1", s, time.Second))

	got, found, err := r.Get(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tacos", got.Query)
	assert.WithinDuration(t, time.Now().Add(time.Second), got.ExpiresAt, 200*time.Millisecond)

	time.Sleep(1100 * time.Millisecond)

	_, found, err = r.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, r.size(), "expired entry is removed on read")
}

func TestCleanupRemovesExpired(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t, time.Hour)

	require.NoError(t, r.Set(ctx, "short", store.NewRequestState("short", "", "", ""), 50*time.Millisecond))
	require.NoError(t, r.Set(ctx, "long", store.NewRequestState("long", "", "", ""), time.Minute))
	time.Sleep(80 * time.Millisecond)

	n, err := r.Cleanup(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	assert.Equal(t, 1, r.size())

	_, found, _ := r.Get(ctx, "long")
	assert.True(t, found)
}

func TestBackgroundSweep(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t, 20*time.Millisecond)

	require.NoError(t, r.Set(ctx, "req-1", store.NewRequestState("req-1", "", "", ""), 10*time.Millisecond))
	assert.Eventually(t, func() bool { return r.size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSetReplacesEntryAndExpiry(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t, time.Hour)

	require.NoError(t, r.Set(ctx, "req-1", store.NewRequestState("req-1", "", "", "first"), 50*time.Millisecond))
	require.NoError(t, r.Set(ctx, "req-1", store.NewRequestState("req-1", "", "", "second"), time.Minute))
	time.Sleep(80 * time.Millisecond)

	got, found, err := r.Get(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", got.Query)
}

func TestStoredEntryDoesNotAliasCaller(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t, time.Hour)

	s := store.NewRequestState("req-1", "", "", "pho")
	require.NoError(t, r.Set(ctx, "req-1", s, time.Minute))
	s.Query = "mutated"
	require.NoError(t, s.RecordStage("gate", "x"))

	got, _, _ := r.Get(ctx, "req-1")
	assert.Equal(t, "pho", got.Query)
	assert.Empty(t, got.StageResults)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t, time.Hour)

	require.NoError(t, r.Delete(ctx, "missing"))
	require.NoError(t, r.Set(ctx, "req-1", store.NewRequestState("req-1", "", "", ""), time.Minute))
	require.NoError(t, r.Delete(ctx, "req-1"))
	_, found, _ := r.Get(ctx, "req-1")
	assert.False(t, found)
}

func TestCloseClearsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRequestStateRepository(time.Minute, time.Hour)
	require.NoError(t, r.Set(ctx, "req-1", store.NewRequestState("req-1", "", "", ""), time.Minute))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.size())
}

func TestConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("req-%d", i)
			assert.NoError(t, r.Set(ctx, id, store.NewRequestState(id, "", "", ""), time.Minute))
			_, found, err := r.Get(ctx, id)
			assert.NoError(t, err)
			assert.True(t, found)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.size())
}
