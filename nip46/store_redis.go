package nip46

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReplayLedger is a distributed replay ledger backed by Redis,
// letting several bunker instances behind the same signer key share one
// replay window. Grounded on the teacher's cache_redis.go connection
// setup; the replay check itself maps naturally onto Redis SETNX with a
// TTL instead of the in-memory map ReplayLedger uses. Satisfies the same
// replayStore interface as ReplayLedger, so Signer can hold either one
// interchangeably depending on Policy.ReplayStoreURL.
type RedisReplayLedger struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisReplayLedger connects to redisURL (redis://[:password@]host:port/db)
// and returns a ledger keyed under prefix.
func NewRedisReplayLedger(redisURL, prefix string, window time.Duration) (*RedisReplayLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("nip46: invalid redis URL: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("nip46: redis connection failed: %w", err)
	}

	return &RedisReplayLedger{client: client, prefix: prefix, window: window}, nil
}

func (r *RedisReplayLedger) key(id string) string {
	return r.prefix + "replay:" + id
}

// CheckAndInsert atomically reports whether id has been seen within the
// window; SETNX succeeds only for the first caller, so the insert and
// the check are one round trip with no race between concurrent bunker
// instances.
func (r *RedisReplayLedger) CheckAndInsert(ctx context.Context, id string) (isReplay bool, err error) {
	ok, err := r.client.SetNX(ctx, r.key(id), 1, r.window).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Close releases the underlying Redis connection pool.
func (r *RedisReplayLedger) Close() error {
	return r.client.Close()
}
