package memory

import (
	"context"
	"sync"
	"time"

	"food-search-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
)

// RequestStateRepository is the in-process store.Store. Expired entries are
// hidden on read and removed by a sweep goroutine owned by the repository.
type RequestStateRepository struct {
	cache      *cache.Cache
	defaultTTL time.Duration

	// writers hold the read side; expiry removal and cleanup hold the write
	// side so a fresh Set can never be deleted as "expired".
	mu sync.RWMutex

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ store.Store = (*RequestStateRepository)(nil)

// NewRequestStateRepository starts a repository whose sweep runs every sweepInterval.
func NewRequestStateRepository(defaultTTL, sweepInterval time.Duration) *RequestStateRepository {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	// No go-cache janitor: the sweep below is cancellable through Close.
	c := cache.New(defaultTTL, 0)

	ctx, cancel := context.WithCancel(context.Background())
	r := &RequestStateRepository{
		cache:      c,
		defaultTTL: defaultTTL,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go r.sweep(ctx, sweepInterval)
	return r
}

func (r *RequestStateRepository) sweep(ctx context.Context, interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.Cleanup(ctx)
		}
	}
}

func (r *RequestStateRepository) Set(_ context.Context, id string, state *store.RequestState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	entry := state.Clone()
	entry.ExpiresAt = time.Now().Add(ttl)

	r.mu.RLock()
	defer r.mu.RUnlock()
	r.cache.Set(id, entry, ttl)
	return nil
}

func (r *RequestStateRepository) Get(_ context.Context, id string) (*store.RequestState, bool, error) {
	if x, found := r.cache.Get(id); found {
		return x.(*store.RequestState).Clone(), true, nil
	}

	// Absent or expired. Drop any expired remnant now instead of waiting for the sweep.
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, found := r.cache.Get(id); found {
		return x.(*store.RequestState).Clone(), true, nil
	}
	r.cache.Delete(id)
	return nil, false, nil
}

func (r *RequestStateRepository) Delete(_ context.Context, id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.cache.Delete(id)
	return nil
}

func (r *RequestStateRepository) Cleanup(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.cache.ItemCount()
	r.cache.DeleteExpired()
	return before - r.cache.ItemCount(), nil
}

// size is the number of stored entries, expired ones included until swept.
func (r *RequestStateRepository) size() int {
	return r.cache.ItemCount()
}

// Close stops the sweep and clears every entry. Safe to call more than once.
func (r *RequestStateRepository) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		<-r.done
		r.cache.Flush()
	})
	return nil
}
