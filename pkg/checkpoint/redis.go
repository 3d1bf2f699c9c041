package checkpoint

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FastStore is the fast checkpoint tier: a key-value store with TTL.
// Failures of this tier are tolerated; the file tier stays authoritative.
type FastStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, key string) error
}

// RedisStore implements FastStore over a redis client
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a redis-backed fast tier
func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{client: redis.NewClient(opt)}
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Close closes the underlying redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
