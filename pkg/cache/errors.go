package cache

import (
	"fmt"
)

// Store operations reported in StoreError.Op and metric labels.
const (
	OpGeneration = "generation"
	OpGet        = "get"
	OpSet        = "set"
)

// StoreError is returned in strict mode when a store call fails.
type StoreError struct {
	Op     string // OpGeneration, OpGet or OpSet
	PathID string
	Key    string // empty for OpGeneration
	Err    error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("viewcache %s %q (%s): %v", e.Op, e.Key, e.PathID, e.Err)
	}
	return fmt.Sprintf("viewcache %s (%s): %v", e.Op, e.PathID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a handler wired without the settings caching
// requires. It is returned at wiring time, never per request.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("viewcache: improperly configured: %s %s", e.Field, e.Reason)
}
