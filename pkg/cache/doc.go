// Package cache provides generation-versioned HTTP response caching.
//
// Rendered responses are stored in a shared key-value store (see package
// store) under a key fingerprinted from the request, and replayed without
// running the handler while the entry lives:
//
// - Only GET requests with no pending one-shot messages are considered
// - Only 200 responses without "Pragma: no-cache", "Vary: Cookie" or a used
// CSRF token are stored
// - Keys vary by path, query, language and authenticated user
// - A store-resident generation counter invalidates everything in O(1)
// - Store failures degrade to uncached serving unless Strict is set
//
// # Basic Usage
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	st, err := store.NewRedis(store.RedisConfig{Client: rdb})
//	if err != nil {
//		return err
//	}
//
//	c := cache.New(cache.DefaultConfig(), st)
//
//	r := chi.NewRouter()
//	r.With(c.MustPage(time.Minute, "blog.post_detail")).
//		Get("/posts/{slug}", postDetail)
//
// # Cache Keys
//
// A key is the path identifier followed by the hex SHA-256 of the prefix,
// generation, path, sorted query, language and user id:
//
//	blog.post_detail/5d41402abc4b2a76b9719d911017c592...
//
// The same key is sent to the client in the validator header (ETag by
// default). Entries are written to the store as "<generation>:<key>", so
// all generations of one view can be purged with PurgePattern.
//
// # Invalidation
//
//	gen, err := c.Invalidate(ctx) // every entry becomes unreachable
//	n, err := c.Purge(ctx, "blog.post_detail")
//
// # Metrics
//
//   - viewcache_hits_total{path_id} - Responses served from cache
//   - viewcache_misses_total{path_id} - Lookups that ran the handler
//   - viewcache_stores_total{path_id} - Responses written to the store
//   - viewcache_bypass_total{reason} - Requests/responses that skipped the cache
//   - viewcache_store_errors_total{operation} - Store failures
//   - viewcache_generation - Last observed generation
package cache
