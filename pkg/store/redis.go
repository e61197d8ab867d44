package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint used when walking keys during a purge.
const scanBatch = 500

// Redis is a Store backed by a Redis server (or cluster/sentinel through
// redis.UniversalClient).
type Redis struct {
	rdb         redis.UniversalClient
	prefix      string
	closeClient bool
}

var (
	_ Store       = (*Redis)(nil)
	_ Adder       = (*Redis)(nil)
	_ Incrementer = (*Redis)(nil)
	_ Purger      = (*Redis)(nil)
	_ Pinger      = (*Redis)(nil)
)

// RedisConfig configures a Redis store.
type RedisConfig struct {
	// Client is the Redis client to use (required).
	Client redis.UniversalClient

	// KeyPrefix is prepended to every key written by this store, separated
	// by a colon. Empty means no prefix.
	KeyPrefix string

	// CloseClient makes Close also close Client. Set it only when the store
	// exclusively owns the client.
	CloseClient bool
}

// NewRedis creates a Redis-backed store.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis store: nil client")
	}
	return &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.KeyPrefix,
		closeClient: cfg.CloseClient,
	}, nil
}

func (s *Redis) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Get retrieves a value. redis.Nil is reported as a miss.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("redis get", err)
	}
	return b, true, nil
}

// Set stores a value. Non-positive TTLs store the key without expiry.
func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

// Add stores a value with SETNX semantics.
func (s *Redis) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.rdb.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable("redis setnx", err)
	}
	return ok, nil
}

// Incr atomically increments a counter key.
func (s *Redis) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, unavailable("redis incr", err)
	}
	return v, nil
}

// Purge walks the keyspace with SCAN and deletes keys matching the glob
// pattern in batches. pattern is relative to the store's KeyPrefix.
func (s *Redis) Purge(ctx context.Context, pattern string) (int, error) {
	match := s.key(pattern)
	deleted := 0

	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return deleted, unavailable("redis scan", err)
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, unavailable("redis del", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ping checks connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("redis ping", err)
	}
	return nil
}

// Close releases the client when the store owns it. Repeated calls are no-ops.
func (s *Redis) Close() error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
