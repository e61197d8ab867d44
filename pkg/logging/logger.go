// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above. Cache decisions are only
	// visible at this level.
	LevelDebug LogLevel = "debug"

	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLevel validates a level name as found in configuration files.
func ParseLevel(s string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	case "warning":
		return LevelWarn, nil
	case "":
		return LevelInfo, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Service is added to every entry as "service" when set.
	Service string

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	lc := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		lc = lc.Str("service", cfg.Service)
	}
	logger := lc.Logger()

	log.Logger = logger
	return logger
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to Info.
func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache decisions (hit/miss, bypass reason, key, TTL)
//   - Store round-trips
//
// Info: Normal operation events
//   - Served requests (access log)
//   - Generation bumps and purges
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Store errors degraded to uncached serving
//   - Store connection retries
//
// Error: Error conditions requiring attention
//   - Store errors in strict mode
//   - Store unreachable at startup
//   - Configuration errors
//
// Context Fields:
//   - path_id: Logical view name ("blog.post_detail")
//   - cache_key: Computed cache key (also sent as the validator header)
//   - cache_hit: Boolean indicating cache hit
//   - reason: Bypass reason
//   - operation: Store operation (generation, get, set)
//   - status_code: HTTP status code
//   - duration: Request duration
//   - generation: Cache generation number
//   - ttl: Cache entry TTL
