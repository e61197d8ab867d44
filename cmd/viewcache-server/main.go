// Command viewcache-server serves a small blog whose pages are cached through
// the view cache. It doubles as a reference wiring of the library.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/viewcache/internal/backend"
	"github.com/Sternrassler/viewcache/pkg/cache"
	"github.com/Sternrassler/viewcache/pkg/config"
	"github.com/Sternrassler/viewcache/pkg/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("VIEWCACHE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LoggingConfig("viewcache-server"))
	logger := logging.NewLogger("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to cache store")
	}
	defer st.Close()

	c := cache.New(cfg.CacheConfig(), st, cache.WithLogger(logging.NewLogger("viewcache")))
	router, err := newRouter(c, st, newBlog())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to wire routes")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("backend", cfg.Store.Backend).
		Dur("cache_duration", cfg.Cache.Duration).
		Bool("strict", cfg.Cache.Strict).
		Msg("Starting view cache server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}
