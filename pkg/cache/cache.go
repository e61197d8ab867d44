package cache

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/viewcache/pkg/logging"
	"github.com/Sternrassler/viewcache/pkg/reqctx"
	"github.com/Sternrassler/viewcache/pkg/store"
)

// ErrorHandler responds to a request whose cache interaction failed in strict
// mode. Nothing has been written to w when it is called.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Cache wraps handlers with read-through/write-through response caching.
// It holds no per-request state and is safe for concurrent use.
type Cache struct {
	cfg     Config
	store   store.Store
	gen     *Generation
	logger  zerolog.Logger
	onError ErrorHandler
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLogger sets the logger (default: component "viewcache").
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithErrorHandler sets the strict-mode error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Cache) {
		if h != nil {
			c.onError = h
		}
	}
}

// New creates a Cache over s. Zero fields of cfg take their defaults.
func New(cfg Config, s store.Store, opts ...Option) *Cache {
	if s == nil {
		panic("viewcache: store cannot be nil")
	}
	cfg = cfg.withDefaults()

	c := &Cache{
		cfg:    cfg,
		store:  s,
		gen:    NewGeneration(s, cfg.GenerationKey),
		logger: logging.NewLogger("viewcache"),
	}
	c.onError = c.defaultErrorHandler
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the cache's configuration.
func (c *Cache) Config() Config { return c.cfg }

// Generation returns the generation counter.
func (c *Cache) Generation() *Generation { return c.gen }

// Invalidate bumps the generation, orphaning every cached entry.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	n, err := c.gen.Bump(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Info().Int64("generation", n).Msg("Cache generation bumped")
	return n, nil
}

// Purge deletes every entry of pathID from the store, across generations.
func (c *Cache) Purge(ctx context.Context, pathID string) (int, error) {
	p, ok := c.store.(store.Purger)
	if !ok {
		return 0, store.ErrPurgeUnsupported
	}
	n, err := p.Purge(ctx, PurgePattern(pathID))
	if err != nil {
		return n, err
	}
	c.logger.Info().Str("path_id", pathID).Int("deleted", n).Msg("Cache entries purged")
	return n, nil
}

// Page returns middleware caching the wrapped handler's responses for ttl
// under pathID. pathID should be a stable dotted name per logical view
// ("app.view") so its entries can be purged together.
func (c *Cache) Page(ttl time.Duration, pathID string) (func(http.Handler) http.Handler, error) {
	if pathID == "" {
		return nil, &ConfigurationError{Field: "path identifier", Reason: "must be set"}
	}
	if ttl <= 0 {
		return nil, &ConfigurationError{Field: "cache duration", Reason: "must be positive"}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := c.Handle(w, r, ttl, pathID, next); err != nil {
				c.onError(w, r, err)
			}
		})
	}, nil
}

// MustPage is like Page but panics on a configuration error.
func (c *Cache) MustPage(ttl time.Duration, pathID string) func(http.Handler) http.Handler {
	mw, err := c.Page(ttl, pathID)
	if err != nil {
		panic(err)
	}
	return mw
}

// Cacheable is a handler that declares its own cache settings.
type Cacheable interface {
	http.Handler

	// CachePath returns the path identifier. It must not be empty.
	CachePath() string

	// CacheDuration returns the TTL. Zero selects Config.CacheDuration.
	CacheDuration() time.Duration
}

// Wrap returns h with caching applied according to its own settings.
func (c *Cache) Wrap(h Cacheable) (http.Handler, error) {
	ttl := h.CacheDuration()
	if ttl == 0 {
		ttl = c.cfg.CacheDuration
	}
	mw, err := c.Page(ttl, h.CachePath())
	if err != nil {
		return nil, err
	}
	return mw(h), nil
}

// Handle serves r through next with caching under pathID. The response is
// written to w unless an error is returned; errors are only returned in
// strict mode.
func (c *Cache) Handle(w http.ResponseWriter, r *http.Request, ttl time.Duration, pathID string, next http.Handler) error {
	// Step 1: Request policy
	if reason := c.requestBypass(r); reason != "" {
		CacheBypasses.WithLabelValues(string(reason)).Inc()
		c.logger.Debug().
			Str("path_id", pathID).
			Str("reason", string(reason)).
			Msg("Request not cacheable")
		next.ServeHTTP(w, r)
		return nil
	}

	ctx := r.Context()

	// Step 2: Fingerprint
	fp, err := c.fingerprint(r, pathID)
	if err != nil {
		if err := c.degrade(OpGeneration, pathID, "", err); err != nil {
			return err
		}
		next.ServeHTTP(w, r)
		return nil
	}
	key := fp.String()
	stored := entryKey(fp.Generation, key)

	// Step 3: Read
	body, ok, err := c.store.Get(ctx, stored)
	if err != nil {
		if err := c.degrade(OpGet, pathID, key, err); err != nil {
			return err
		}
		next.ServeHTTP(w, r)
		return nil
	}

	// Step 4: Hit, the handler is skipped entirely
	if ok {
		CacheHits.WithLabelValues(pathID).Inc()
		c.logger.Debug().
			Str("path_id", pathID).
			Str("cache_key", key).
			Bool("cache_hit", true).
			Msg("Serving cached response")

		w.Header().Set(c.cfg.ValidatorHeader, key)
		if err := writeCached(w, body, c.cfg.ContentType); err != nil {
			c.logger.Debug().Err(err).Str("cache_key", key).Msg("Failed to write cached response")
		}
		return nil
	}

	// Step 5: Miss, render into a buffer
	CacheMisses.WithLabelValues(pathID).Inc()
	r = reqctx.EnsureCSRF(r)
	rec := newRecorder()
	next.ServeHTTP(rec, r)

	// Step 6: Response policy and write
	if reason := c.responseBypass(r, rec.status, rec.header); reason != "" {
		CacheBypasses.WithLabelValues(string(reason)).Inc()
		c.logger.Debug().
			Str("path_id", pathID).
			Str("cache_key", key).
			Str("reason", string(reason)).
			Int("status_code", rec.status).
			Msg("Response not cacheable")
	} else if err := c.store.Set(ctx, stored, rec.Body(), ttl); err != nil {
		if err := c.degrade(OpSet, pathID, key, err); err != nil {
			return err
		}
		c.release(rec, w, key)
		return nil
	} else {
		CacheStores.WithLabelValues(pathID).Inc()
		c.logger.Debug().
			Str("path_id", pathID).
			Str("cache_key", key).
			Dur("ttl", ttl).
			Msg("Cached response")
	}

	// Step 7: Validator header
	rec.header.Set(c.cfg.ValidatorHeader, key)
	c.release(rec, w, key)
	return nil
}

func (c *Cache) release(rec *recorder, w http.ResponseWriter, key string) {
	if err := rec.flush(w); err != nil {
		c.logger.Debug().Err(err).Str("cache_key", key).Msg("Failed to write response")
	}
}

// degrade records a store failure and decides its fate: nil means carry on
// as if the cache were absent, non-nil (strict mode) means propagate.
func (c *Cache) degrade(op, pathID, key string, err error) error {
	CacheErrors.WithLabelValues(op).Inc()
	serr := &StoreError{Op: op, PathID: pathID, Key: key, Err: err}

	if c.cfg.Strict {
		return serr
	}
	c.logger.Warn().
		Err(err).
		Str("operation", op).
		Str("path_id", pathID).
		Str("cache_key", key).
		Msg("Cache store error, serving uncached")
	return nil
}

func (c *Cache) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	c.logger.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Cache store unavailable")
	http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
}
