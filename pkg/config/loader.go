package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VIEWCACHE_"

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Loader reads configuration files and validates the result.
type Loader struct {
	validator *validator.Validate
	lookupEnv func(string) (string, bool)
}

// NewLoader returns a Loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
		lookupEnv: os.LookupEnv,
	}
}

// Load is NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then VIEWCACHE_* environment overrides, then
// validation.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags.
func (l *Loader) Validate(cfg *Config) error {
	cfg.Redis.Enabled = cfg.Store.Backend == BackendRedis
	if err := l.validator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// applyEnv overlays environment variables. Unset or empty variables keep the
// current value.
func (l *Loader) applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"ADDR":                   &cfg.Server.Addr,
		"STORE_BACKEND":          &cfg.Store.Backend,
		"REDIS_ADDR":             &cfg.Redis.Addr,
		"REDIS_PASSWORD":         &cfg.Redis.Password,
		"REDIS_KEY_PREFIX":       &cfg.Redis.KeyPrefix,
		"CACHE_KEY_PREFIX":       &cfg.Cache.KeyPrefix,
		"CACHE_GENERATION_KEY":   &cfg.Cache.GenerationKey,
		"CACHE_DEFAULT_LANGUAGE": &cfg.Cache.DefaultLanguage,
		"CACHE_CONTENT_TYPE":     &cfg.Cache.ContentType,
		"CACHE_VALIDATOR_HEADER": &cfg.Cache.ValidatorHeader,
		"LOG_LEVEL":              &cfg.Log.Level,
	}
	for name, dst := range strs {
		if v := l.getEnv(name); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"CACHE_DISABLED": &cfg.Cache.Disabled,
		"CACHE_STRICT":   &cfg.Cache.Strict,
		"LOG_PRETTY":     &cfg.Log.Pretty,
	}
	for name, dst := range bools {
		if v := l.getEnv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"CACHE_DURATION":    &cfg.Cache.Duration,
		"STORE_LIFE_WINDOW": &cfg.Store.LifeWindow,
		"SHUTDOWN_TIMEOUT":  &cfg.Server.ShutdownTimeout,
	}
	for name, dst := range durations {
		if v := l.getEnv(name); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	if v := l.getEnv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

func (l *Loader) getEnv(name string) string {
	v, _ := l.lookupEnv(EnvPrefix + name)
	return strings.TrimSpace(v)
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
