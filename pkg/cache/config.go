package cache

import "time"

// Defaults applied by DefaultConfig and to zero fields passed to New.
const (
	DefaultCacheDuration   = 15 * time.Second
	DefaultKeyPrefix       = "viewcache"
	DefaultGenerationKey   = "viewcache.gen"
	DefaultLanguage        = "en-us"
	DefaultContentType     = "text/html; charset=utf-8"
	DefaultValidatorHeader = "ETag"
)

// Config holds the process-wide cache settings. A Config is copied into the
// Cache at construction and never changes afterwards.
type Config struct {
	// CacheDuration is the TTL used by handlers that do not set their own.
	CacheDuration time.Duration

	// KeyPrefix namespaces the key material hashed into every fingerprint.
	KeyPrefix string

	// Disabled turns every request into a bypass.
	Disabled bool

	// GenerationKey is the store key holding the generation counter.
	GenerationKey string

	// Strict makes store failures propagate to the error handler instead of
	// degrading to an uncached response. Meant for development.
	Strict bool

	// DefaultLanguage is hashed into the fingerprint when the request has no
	// active language.
	DefaultLanguage string

	// ContentType is sent with responses served from cache.
	ContentType string

	// ValidatorHeader is the response header that carries the cache key.
	ValidatorHeader string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		CacheDuration:   DefaultCacheDuration,
		KeyPrefix:       DefaultKeyPrefix,
		Disabled:        false,
		GenerationKey:   DefaultGenerationKey,
		Strict:          false,
		DefaultLanguage: DefaultLanguage,
		ContentType:     DefaultContentType,
		ValidatorHeader: DefaultValidatorHeader,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheDuration <= 0 {
		c.CacheDuration = d.CacheDuration
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	if c.GenerationKey == "" {
		c.GenerationKey = d.GenerationKey
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = d.DefaultLanguage
	}
	if c.ContentType == "" {
		c.ContentType = d.ContentType
	}
	if c.ValidatorHeader == "" {
		c.ValidatorHeader = d.ValidatorHeader
	}
	return c
}
