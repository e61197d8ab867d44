// Package testutil provides testing utilities for the view cache.
package testutil

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/viewcache/pkg/store"
)

// ErrInjected is the failure returned by a MockStore operation switched to fail.
var ErrInjected = errors.New("injected store failure")

// failure wraps ErrInjected so errors.Is(err, store.ErrUnavailable) holds,
// like a real backend that lost its connection.
type failure struct{ op string }

func (f failure) Error() string { return f.op + ": " + ErrInjected.Error() }

func (f failure) Unwrap() []error { return []error{store.ErrUnavailable, ErrInjected} }

type mockItem struct {
	value   []byte
	expires time.Time // zero means never
}

// MockStore is an in-memory store.Store with failure injection and call
// tracking. It implements store.Adder, store.Incrementer and store.Purger.
type MockStore struct {
	mu    sync.Mutex
	items map[string]mockItem
	now   func() time.Time

	failGet  bool
	failSet  bool
	failIncr bool

	// Tracking
	GetCount int
	SetCount int
	LastTTL  map[string]time.Duration
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		items:   make(map[string]mockItem),
		now:     time.Now,
		LastTTL: make(map[string]time.Duration),
	}
}

// FailGet makes every Get fail (or succeed again).
func (m *MockStore) FailGet(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGet = fail
}

// FailSet makes every Set and Add fail (or succeed again).
func (m *MockStore) FailSet(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = fail
}

// FailIncr makes every Incr fail (or succeed again).
func (m *MockStore) FailIncr(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIncr = fail
}

// FailAll toggles failure for every operation.
func (m *MockStore) FailAll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGet, m.failSet, m.failIncr = fail, fail, fail
}

// Advance moves the store clock forward, expiring entries.
func (m *MockStore) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := m.now()
	m.now = func() time.Time { return base.Add(d) }
}

// Reset clears all tracking counters.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCount = 0
	m.SetCount = 0
	m.LastTTL = make(map[string]time.Duration)
}

// Get implements store.Store.
func (m *MockStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCount++
	if m.failGet {
		return nil, false, failure{op: "get"}
	}
	it, ok := m.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

// Set implements store.Store.
func (m *MockStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCount++
	if m.failSet {
		return failure{op: "set"}
	}
	m.put(key, value, ttl)
	return nil
}

// Add implements store.Adder.
func (m *MockStore) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return false, failure{op: "add"}
	}
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

// Incr implements store.Incrementer.
func (m *MockStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIncr {
		return 0, failure{op: "incr"}
	}
	var n int64
	it, ok := m.lookup(key)
	if ok {
		var err error
		if n, err = strconv.ParseInt(string(it.value), 10, 64); err != nil {
			return 0, err
		}
	}
	n++
	it.value = []byte(strconv.FormatInt(n, 10))
	m.items[key] = it
	return n, nil
}

// Purge implements store.Purger.
func (m *MockStore) Purge(_ context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.items {
		match, err := path.Match(pattern, k)
		if err != nil {
			return n, err
		}
		if match {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

// Close implements store.Store.
func (m *MockStore) Close() error { return nil }

// Keys returns the live keys.
func (m *MockStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		if _, ok := m.lookup(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Put stores a raw value without counting it as a Set.
func (m *MockStore) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = mockItem{value: value}
}

// GetSetCount returns the number of Set calls.
func (m *MockStore) GetSetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SetCount
}

func (m *MockStore) lookup(key string) (mockItem, bool) {
	it, ok := m.items[key]
	if !ok {
		return mockItem{}, false
	}
	if !it.expires.IsZero() && !m.now().Before(it.expires) {
		delete(m.items, key)
		return mockItem{}, false
	}
	return it, true
}

func (m *MockStore) put(key string, value []byte, ttl time.Duration) {
	it := mockItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.items[key] = it
	m.LastTTL[key] = ttl
}

// BareStore exposes only the store.Store methods of a MockStore, hiding its
// optional capabilities.
type BareStore struct {
	m *MockStore
}

// NewBareStore wraps m.
func NewBareStore(m *MockStore) BareStore { return BareStore{m: m} }

// Get implements store.Store.
func (b BareStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.m.Get(ctx, key)
}

// Set implements store.Store.
func (b BareStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.m.Set(ctx, key, value, ttl)
}

// Close implements store.Store.
func (b BareStore) Close() error { return b.m.Close() }
