// Package config loads the view cache server configuration from a YAML file
// and VIEWCACHE_* environment variables.
package config

import (
	"time"

	"github.com/Sternrassler/viewcache/pkg/cache"
	"github.com/Sternrassler/viewcache/pkg/logging"
	"github.com/Sternrassler/viewcache/pkg/store"
)

// Store backends.
const (
	BackendRedis     = "redis"
	BackendRistretto = "ristretto"
	BackendBigCache  = "bigcache"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig selects and sizes the cache backend.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=redis ristretto bigcache"`

	// ConnectAttempts bounds the startup ping loop for remote backends.
	ConnectAttempts int `yaml:"connect_attempts" validate:"gte=1"`

	// MaxCostMB bounds the ristretto backend.
	MaxCostMB int64 `yaml:"max_cost_mb" validate:"gte=1"`

	// LifeWindow and HardMaxCacheSizeMB configure the bigcache backend, which
	// expires entries after a single global window.
	LifeWindow         time.Duration `yaml:"life_window" validate:"gt=0"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb" validate:"gte=0"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" validate:"required_if=Enabled true"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`

	// Enabled is set by Load when Store.Backend is redis.
	Enabled bool `yaml:"-"`
}

// CacheConfig mirrors cache.Config.
type CacheConfig struct {
	Duration        time.Duration `yaml:"duration" validate:"gt=0"`
	KeyPrefix       string        `yaml:"key_prefix" validate:"required"`
	Disabled        bool          `yaml:"disabled"`
	GenerationKey   string        `yaml:"generation_key" validate:"required"`
	Strict          bool          `yaml:"strict"`
	DefaultLanguage string        `yaml:"default_language" validate:"required"`
	ContentType     string        `yaml:"content_type"`
	ValidatorHeader string        `yaml:"validator_header"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the default configuration.
func Default() *Config {
	cc := cache.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:            BackendRedis,
			ConnectAttempts:    store.DefaultRetryConfig().MaxAttempts,
			MaxCostMB:          256,
			LifeWindow:         10 * time.Minute,
			HardMaxCacheSizeMB: 0,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Cache: CacheConfig{
			Duration:        cc.CacheDuration,
			KeyPrefix:       cc.KeyPrefix,
			Disabled:        cc.Disabled,
			GenerationKey:   cc.GenerationKey,
			Strict:          cc.Strict,
			DefaultLanguage: cc.DefaultLanguage,
			ContentType:     cc.ContentType,
			ValidatorHeader: cc.ValidatorHeader,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// CacheConfig converts to the immutable cache.Config.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		CacheDuration:   c.Cache.Duration,
		KeyPrefix:       c.Cache.KeyPrefix,
		Disabled:        c.Cache.Disabled,
		GenerationKey:   c.Cache.GenerationKey,
		Strict:          c.Cache.Strict,
		DefaultLanguage: c.Cache.DefaultLanguage,
		ContentType:     c.Cache.ContentType,
		ValidatorHeader: c.Cache.ValidatorHeader,
	}
}

// LoggingConfig converts to logging.Config. Output is left to the default.
func (c *Config) LoggingConfig(service string) logging.Config {
	lc := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = lvl
	}
	lc.Pretty = c.Log.Pretty
	lc.Service = service
	return lc
}

// RistrettoConfig converts to store.RistrettoConfig.
func (c *Config) RistrettoConfig() store.RistrettoConfig {
	rc := store.DefaultRistrettoConfig()
	rc.MaxCost = c.Store.MaxCostMB << 20
	return rc
}

// BigCacheConfig converts to store.BigCacheConfig.
func (c *Config) BigCacheConfig() store.BigCacheConfig {
	return store.BigCacheConfig{
		LifeWindow:         c.Store.LifeWindow,
		CleanWindow:        c.Store.LifeWindow / 2,
		HardMaxCacheSizeMB: c.Store.HardMaxCacheSizeMB,
	}
}

// RetryConfig converts to store.RetryConfig.
func (c *Config) RetryConfig() store.RetryConfig {
	rc := store.DefaultRetryConfig()
	rc.MaxAttempts = c.Store.ConnectAttempts
	return rc
}
