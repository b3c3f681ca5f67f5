package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "licenseboard:snapshot:"

// SnapshotStore holds serialized read-model snapshots shared by every render within a TTL.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// NewSnapshotStore picks the redis-backed store when a client is available.
func NewSnapshotStore(client *redis.Client) SnapshotStore {
	if client != nil {
		return NewRedisSnapshotStore(client)
	}
	return NewMemorySnapshotStore()
}

type memorySnapshotStore struct {
	entries Cache[string, []byte]
}

func NewMemorySnapshotStore() SnapshotStore {
	return &memorySnapshotStore{entries: NewTTLCache[string, []byte]()}
}

func newMemorySnapshotStoreWithClock(now func() time.Time) *memorySnapshotStore {
	return &memorySnapshotStore{entries: newTTLCacheWithClock[string, []byte](now)}
}

func (s *memorySnapshotStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *memorySnapshotStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries.Set(key, stored, ttl)
	return nil
}

func (s *memorySnapshotStore) Invalidate(context.Context) error {
	s.entries.Purge()
	return nil
}

type redisSnapshotStore struct {
	client *redis.Client
}

func NewRedisSnapshotStore(client *redis.Client) SnapshotStore {
	return &redisSnapshotStore{client: client}
}

func (s *redisSnapshotStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, snapshotKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *redisSnapshotStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, snapshotKeyPrefix+key, value, ttl).Err()
}

func (s *redisSnapshotStore) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, snapshotKeyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
