package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Sternrassler/viewcache/pkg/store"
)

// initialGeneration is the value an absent or falsy counter is reset to.
const initialGeneration = 1

// Generation is the store-resident counter every fingerprint embeds.
// Bumping it makes every existing entry unreachable at once; the orphaned
// entries age out through their own TTLs.
type Generation struct {
	store store.Store
	key   string
}

// NewGeneration returns the counter stored under key.
func NewGeneration(s store.Store, key string) *Generation {
	return &Generation{store: s, key: key}
}

// Key returns the store key holding the counter.
func (g *Generation) Key() string { return g.key }

// Current returns the current generation, initializing the counter to 1
// (without expiry) when it is absent or not a positive integer.
//
// With a store.Adder the initialization is a set-if-absent; otherwise two
// concurrent initializers may both write 1, which is harmless.
func (g *Generation) Current(ctx context.Context) (int64, error) {
	raw, ok, err := g.store.Get(ctx, g.key)
	if err != nil {
		return 0, err
	}
	if ok {
		if n := parseGeneration(raw); n > 0 {
			CurrentGeneration.Set(float64(n))
			return n, nil
		}
	}

	if a, ok := g.store.(store.Adder); ok {
		added, err := a.Add(ctx, g.key, formatGeneration(initialGeneration), 0)
		if err != nil {
			return 0, err
		}
		if !added {
			// Lost the race, or a falsy value is sitting there.
			raw, ok, err := g.store.Get(ctx, g.key)
			if err != nil {
				return 0, err
			}
			if n := parseGeneration(raw); ok && n > 0 {
				CurrentGeneration.Set(float64(n))
				return n, nil
			}
			if err := g.store.Set(ctx, g.key, formatGeneration(initialGeneration), 0); err != nil {
				return 0, err
			}
		}
	} else if err := g.store.Set(ctx, g.key, formatGeneration(initialGeneration), 0); err != nil {
		return 0, err
	}

	CurrentGeneration.Set(initialGeneration)
	return initialGeneration, nil
}

// Bump increments the generation and returns the new value. It is the
// invalidation operation run by operators, not by the request path.
func (g *Generation) Bump(ctx context.Context) (int64, error) {
	inc, ok := g.store.(store.Incrementer)
	if !ok {
		return 0, fmt.Errorf("viewcache: store %T cannot increment the generation", g.store)
	}

	// An absent counter reads as 1, so it must exist before INCR.
	if _, err := g.Current(ctx); err != nil {
		return 0, err
	}
	n, err := inc.Incr(ctx, g.key)
	if err != nil {
		return 0, err
	}
	CurrentGeneration.Set(float64(n))
	return n, nil
}

func parseGeneration(raw []byte) int64 {
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formatGeneration(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}
