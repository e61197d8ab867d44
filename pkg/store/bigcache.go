package store

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCache is an in-process Store with a single, global entry lifetime.
//
// BigCache ignores per-entry TTLs: every value written with ttl > 0 lives for
// the configured LifeWindow. Values written with ttl <= 0 (the generation
// counter) are kept in a separate map and never expire.
type BigCache struct {
	c *bigcache.BigCache

	mu         sync.RWMutex
	persistent map[string][]byte
}

var (
	_ Store       = (*BigCache)(nil)
	_ Adder       = (*BigCache)(nil)
	_ Incrementer = (*BigCache)(nil)
	_ Purger      = (*BigCache)(nil)
)

// BigCacheConfig tunes the in-process cache.
type BigCacheConfig struct {
	LifeWindow         time.Duration // lifetime of every expiring entry
	CleanWindow        time.Duration // 0 keeps the bigcache default
	MaxEntrySize       int           // bytes, initial allocation hint
	HardMaxCacheSizeMB int           // 0 = unlimited
}

// NewBigCache creates a BigCache-backed store.
func NewBigCache(ctx context.Context, cfg BigCacheConfig) (*BigCache, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache store: life window must be positive")
	}
	conf := bigcache.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false

	c, err := bigcache.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &BigCache{c: c, persistent: make(map[string][]byte)}, nil
}

// Get returns a stored value, looking at non-expiring keys first.
func (s *BigCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	v, ok := s.persistent[key]
	s.mu.RUnlock()
	if ok {
		return append([]byte(nil), v...), true, nil
	}

	b, err := s.c.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("bigcache get", err)
	}
	return b, true, nil
}

// Set stores value. ttl > 0 entries expire after the store's LifeWindow.
func (s *BigCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		s.mu.Lock()
		s.persistent[key] = append([]byte(nil), value...)
		s.mu.Unlock()
		_ = s.c.Delete(key)
		return nil
	}

	s.mu.Lock()
	delete(s.persistent, key)
	s.mu.Unlock()
	if err := s.c.Set(key, value); err != nil {
		return unavailable("bigcache set", err)
	}
	return nil
}

// Add stores value if key is absent.
func (s *BigCache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.persistent[key]; ok {
		return false, nil
	}
	if _, err := s.c.Get(key); err == nil {
		return false, nil
	}
	if ttl <= 0 {
		s.persistent[key] = append([]byte(nil), value...)
		return true, nil
	}
	if err := s.c.Set(key, value); err != nil {
		return false, unavailable("bigcache set", err)
	}
	return true, nil
}

// Incr increments a non-expiring decimal counter.
func (s *BigCache) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if raw, ok := s.persistent[key]; ok {
		v, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, errors.New("bigcache store: value is not an integer")
		}
		n = v
	}
	n++
	s.persistent[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Purge deletes keys matching pattern from both the expiring and the
// persistent keyspace.
func (s *BigCache) Purge(_ context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, err
	}

	var doomed []string
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if ok, _ := path.Match(pattern, info.Key()); ok {
			doomed = append(doomed, info.Key())
		}
	}

	deleted := 0
	for _, k := range doomed {
		if err := s.c.Delete(k); err == nil {
			deleted++
		}
	}

	s.mu.Lock()
	for k := range s.persistent {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.persistent, k)
			deleted++
		}
	}
	s.mu.Unlock()

	return deleted, nil
}

// Close releases the cache's shards and cleanup goroutine.
func (s *BigCache) Close() error {
	return s.c.Close()
}
