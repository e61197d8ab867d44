// Package store provides the key-value backends the view cache reads from and
// writes to.
//
// Every backend is byte-for-byte transparent: Get returns exactly the bytes a
// previous Set stored. A miss is a normal outcome reported as ok == false,
// never as an error. Connectivity and protocol failures are reported as errors
// wrapping ErrUnavailable so callers can decide to degrade or propagate.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable indicates the store could not be reached or answered
	// with a protocol error.
	ErrUnavailable = errors.New("store unavailable")

	// ErrPurgeUnsupported is returned by backends that cannot enumerate keys.
	ErrPurgeUnsupported = errors.New("purge not supported by store")
)

// Store is the minimal byte store with TTLs used by the cache.
type Store interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases resources held by the store.
	Close() error
}

// Adder is implemented by stores offering an atomic set-if-absent.
type Adder interface {
	// Add stores value only if key does not exist. It reports whether the
	// value was written.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Incrementer is implemented by stores that can atomically increment a
// decimal counter. Missing keys count from zero.
type Incrementer interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Purger is implemented by stores that can delete keys by glob pattern
// ("*" matches any run of characters other than "/").
type Purger interface {
	// Purge deletes every key matching pattern and returns the number of
	// keys removed.
	Purge(ctx context.Context, pattern string) (int, error)
}

// Pinger is implemented by remote stores that support a health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// unavailable wraps err with ErrUnavailable, keeping the original message.
func unavailable(op string, err error) error {
	return &opError{op: op, err: err}
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string {
	return e.op + ": " + ErrUnavailable.Error() + ": " + e.err.Error()
}

func (e *opError) Unwrap() []error {
	return []error{ErrUnavailable, e.err}
}
