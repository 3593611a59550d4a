package velocity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCountPrefix = "velocity/"

// RedisStore keeps counters in Redis so every engine instance sees the same
// velocity. Hourly buckets expire on their own.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{Client: rdb}, nil
}

// GetCount implements Store.
func (s *RedisStore) GetCount(ctx context.Context, activity string, userID int64) (int, error) {
	key := redisCountPrefix + hourBucket(activity, userID, time.Now())
	c, err := s.Client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c, nil
}

// Increment implements Store. The bump and its expiry share one round-trip.
func (s *RedisStore) Increment(ctx context.Context, activity string, userID int64) error {
	key := redisCountPrefix + hourBucket(activity, userID, time.Now())
	multi := s.Client.TxPipeline()
	multi.Incr(ctx, key)
	multi.Expire(ctx, key, 2*time.Hour)
	_, err := multi.Exec(ctx)
	return err
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}
