// Package backend opens the store selected by the configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/viewcache/pkg/config"
	"github.com/Sternrassler/viewcache/pkg/store"
)

// Open creates the configured store and, for remote backends, waits for it
// to answer a ping. The caller owns the returned store.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.Store.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st, err = store.NewRedis(store.RedisConfig{
			Client:      rdb,
			KeyPrefix:   cfg.Redis.KeyPrefix,
			CloseClient: true,
		})
		if err != nil {
			rdb.Close()
		}
	case config.BackendRistretto:
		st, err = store.NewRistretto(cfg.RistrettoConfig())
	case config.BackendBigCache:
		st, err = store.NewBigCache(ctx, cfg.BigCacheConfig())
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	if err := store.Connect(ctx, st, cfg.RetryConfig()); err != nil {
		st.Close()
		return nil, err
	}

	logger.Info().
		Str("backend", cfg.Store.Backend).
		Str("addr", addrOf(cfg)).
		Msg("Connected to cache store")
	return st, nil
}

func addrOf(cfg *config.Config) string {
	if cfg.Store.Backend == config.BackendRedis {
		return cfg.Redis.Addr
	}
	return "in-process"
}
