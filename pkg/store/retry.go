package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var (
	connectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viewcache_store_connect_attempts_total",
		Help: "Total number of store connection attempts at startup",
	})

	connectBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "viewcache_store_connect_backoff_seconds",
		Help:    "Backoff duration between store connection attempts",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// ErrConnectExhausted is returned when the store never answered a ping.
var ErrConnectExhausted = errors.New("store connect attempts exhausted")

// RetryConfig holds the configuration for connecting to a store.
type RetryConfig struct {
	// MaxAttempts is the maximum number of ping attempts.
	MaxAttempts int

	// InitialBackoff is the wait after the first failed attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the growth factor between attempts.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default connect configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Connect pings p until it answers, backing off exponentially with jitter.
// Stores that do not implement Pinger are considered connected.
func Connect(ctx context.Context, s Store, cfg RetryConfig) error {
	p, ok := s.(Pinger)
	if !ok {
		return nil
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		connectAttemptsTotal.Inc()

		err := p.Ping(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("Store reachable after retry")
			}
			return nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			break
		}

		// ±20% jitter
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		connectBackoffSeconds.Observe(jitter.Seconds())

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Store not reachable, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("store connect: %w", ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrConnectExhausted, cfg.MaxAttempts, lastErr)
}
