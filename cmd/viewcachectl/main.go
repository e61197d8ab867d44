// Command viewcachectl inspects and invalidates a view cache.
//
// Usage:
//
//	viewcachectl [-config file] generation
//	viewcachectl [-config file] bump
//	viewcachectl [-config file] purge <path-id>...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/viewcache/internal/backend"
	"github.com/Sternrassler/viewcache/pkg/cache"
	"github.com/Sternrassler/viewcache/pkg/config"
	"github.com/Sternrassler/viewcache/pkg/logging"
)

var errUsage = errors.New("usage: viewcachectl [-config file] [-timeout d] generation | bump | purge <path-id>...")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("viewcachectl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", os.Getenv("VIEWCACHE_CONFIG"), "path to YAML config file")
	timeout := fs.Duration("timeout", 30*time.Second, "overall deadline")
	verbose := fs.Bool("v", false, "log store activity to stderr")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	lc := cfg.LoggingConfig("viewcachectl")
	lc.Output = os.Stderr
	if !*verbose {
		lc.Level = logging.LevelError
	}
	logger := logging.Setup(lc)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	c := cache.New(cfg.CacheConfig(), st, cache.WithLogger(logger.With().Str("component", "viewcache").Logger()))
	return dispatch(ctx, c, fs.Args(), out)
}

func dispatch(ctx context.Context, c *cache.Cache, args []string, out io.Writer) error {
	switch args[0] {
	case "generation":
		if len(args) != 1 {
			return errUsage
		}
		n, err := c.Generation().Current(ctx)
		if err != nil {
			return fmt.Errorf("read generation: %w", err)
		}
		fmt.Fprintln(out, n)

	case "bump":
		if len(args) != 1 {
			return errUsage
		}
		n, err := c.Invalidate(ctx)
		if err != nil {
			return fmt.Errorf("bump generation: %w", err)
		}
		fmt.Fprintf(out, "generation %d\n", n)

	case "purge":
		if len(args) < 2 {
			return errUsage
		}
		for _, pathID := range args[1:] {
			n, err := c.Purge(ctx, pathID)
			if err != nil {
				return fmt.Errorf("purge %s: %w", pathID, err)
			}
			fmt.Fprintf(out, "%s: %d deleted\n", pathID, n)
		}

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return nil
}
