package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Ristretto is an in-process Store for single-replica deployments and tests.
// Entries carry per-key TTLs. Keys cannot be enumerated, so prefix purges are
// not supported; invalidate with a generation bump instead.
//
// Values written with ttl <= 0 (the generation counter) bypass the cost-bounded
// cache and are kept in a map, so admission and eviction never drop them.
type Ristretto struct {
	c *ristretto.Cache

	// mu guards persistent and serializes read-modify-write operations.
	mu         sync.RWMutex
	persistent map[string][]byte
}

// errSetDropped is returned when ristretto refuses a write.
var errSetDropped = errors.New("write dropped")

var (
	_ Store       = (*Ristretto)(nil)
	_ Adder       = (*Ristretto)(nil)
	_ Incrementer = (*Ristretto)(nil)
)

// RistrettoConfig sizes the in-process cache.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64 // total bytes of values kept
	BufferItems int64
}

// DefaultRistrettoConfig returns a config suitable for roughly 100k entries
// and 256 MiB of bodies.
func DefaultRistrettoConfig() RistrettoConfig {
	return RistrettoConfig{
		NumCounters: 1_000_000,
		MaxCost:     256 << 20,
		BufferItems: 64,
	}
}

// NewRistretto creates an in-process store.
func NewRistretto(cfg RistrettoConfig) (*Ristretto, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto store: invalid config")
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c, persistent: make(map[string][]byte)}, nil
}

// Get returns a stored value, looking at non-expiring keys first.
func (s *Ristretto) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	v, ok := s.persistent[key]
	s.mu.RUnlock()
	if ok {
		return append([]byte(nil), v...), true, nil
	}
	return s.get(key)
}

func (s *Ristretto) get(key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set stores a copy of value. The write is made visible before returning.
func (s *Ristretto) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(key, value, ttl)
}

// set requires s.mu held for writing.
func (s *Ristretto) set(key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	if ttl <= 0 {
		s.persistent[key] = cp
		s.c.Del(key)
		return nil
	}

	delete(s.persistent, key)
	cost := int64(len(cp))
	if cost == 0 {
		cost = 1
	}
	if !s.c.SetWithTTL(key, cp, cost, ttl) {
		return unavailable("ristretto set", errSetDropped)
	}
	s.c.Wait()
	return nil
}

// Add stores value if key is absent.
func (s *Ristretto) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.persistent[key]; ok {
		return false, nil
	}
	if _, ok, _ := s.get(key); ok {
		return false, nil
	}
	if err := s.set(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Incr increments a non-expiring decimal counter.
func (s *Ristretto) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if raw, ok := s.persistent[key]; ok {
		v, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, errors.New("ristretto store: value is not an integer")
		}
		n = v
	}
	n++
	s.persistent[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Close stops the cache's background goroutines.
func (s *Ristretto) Close() error {
	s.c.Close()
	return nil
}
