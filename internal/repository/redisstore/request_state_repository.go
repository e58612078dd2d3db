package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"food-search-be/pkg/store"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "search:state:"
	DefaultTTL       = 5 * time.Minute
)

// RequestStateRepository keeps RequestState entries in Redis so several
// instances can share them. Redis expires keys itself, so Cleanup has nothing
// to sweep.
type RequestStateRepository struct {
	rdb        *redis.Client
	prefix     string
	defaultTTL time.Duration
}

var _ store.Store = (*RequestStateRepository)(nil)

func NewRequestStateRepository(rdb *redis.Client, prefix string, defaultTTL time.Duration) *RequestStateRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &RequestStateRepository{rdb: rdb, prefix: prefix, defaultTTL: defaultTTL}
}

func (r *RequestStateRepository) key(id string) string {
	return r.prefix + id
}

func (r *RequestStateRepository) Set(ctx context.Context, id string, state *store.RequestState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	entry := state.Clone()
	entry.ExpiresAt = time.Now().Add(ttl)

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal request state %s: %w", id, err)
	}
	if err := r.rdb.Set(ctx, r.key(id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", id, err)
	}
	return nil
}

func (r *RequestStateRepository) Get(ctx context.Context, id string) (*store.RequestState, bool, error) {
	payload, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", id, err)
	}

	var state store.RequestState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, false, fmt.Errorf("unmarshal request state %s: %w", id, err)
	}
	// Redis key expiry has millisecond resolution; trust our own timestamp too.
	if state.Expired(time.Now()) {
		_ = r.rdb.Del(ctx, r.key(id)).Err()
		return nil, false, nil
	}
	if state.StageResults == nil {
		state.StageResults = make(map[string]json.RawMessage)
	}
	return &state, true, nil
}

func (r *RequestStateRepository) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}

// Cleanup is a no-op: Redis evicts expired keys on its own.
func (r *RequestStateRepository) Cleanup(context.Context) (int, error) {
	return 0, nil
}

// Close is a no-op. The client belongs to whoever built it, and shared
// entries are left for other instances.
func (r *RequestStateRepository) Close() error {
	return nil
}
