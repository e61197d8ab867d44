package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/text/language"

	"github.com/Sternrassler/viewcache/pkg/cache"
	"github.com/Sternrassler/viewcache/pkg/logging"
	"github.com/Sternrassler/viewcache/pkg/metrics"
	"github.com/Sternrassler/viewcache/pkg/reqctx"
	"github.com/Sternrassler/viewcache/pkg/store"
)

// Path identifiers of the cached views.
const (
	pathPostList   = "blog.post_list"
	pathPostDetail = "blog.post_detail"
	pathAbout      = "blog.about"
)

var supportedLanguages = []language.Tag{
	language.AmericanEnglish,
	language.German,
	language.French,
}

func newRouter(c *cache.Cache, st store.Store, b *blog) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.HTTPMiddleware(logging.NewLogger("http")))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(st))
	r.Handle("/metrics", metrics.Handler())

	about, err := c.Wrap(aboutView{})
	if err != nil {
		return nil, err
	}
	postList, err := c.Page(time.Minute, pathPostList)
	if err != nil {
		return nil, err
	}

	r.Group(func(r chi.Router) {
		r.Use(reqctx.Locale(supportedLanguages...))
		r.Use(sessionMiddleware(b))

		r.Method(http.MethodGet, "/about", about)
		r.With(postList).Get("/", b.listPosts)
		r.With(c.MustPage(5*time.Minute, pathPostDetail)).Get("/posts/{slug}", b.showPost)
		r.With(c.MustPage(5*time.Minute, pathPostDetail)).Post("/posts/{slug}/comments", b.addComment)
	})

	blogLog := logging.NewLogger("blog")
	b.changed = func(ctx context.Context, pathID string) {
		_, err := c.Purge(ctx, pathID)
		if errors.Is(err, store.ErrPurgeUnsupported) {
			_, err = c.Invalidate(ctx)
		}
		if err != nil {
			blogLog.Warn().Err(err).Str("path_id", pathID).Msg("Failed to drop stale pages")
		}
	}

	r.Route("/admin/cache", func(r chi.Router) {
		r.Get("/generation", generationHandler(c))
		r.Post("/invalidate", invalidateHandler(c))
		r.Delete("/{pathID}", purgeHandler(c))
	})

	return r, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := st.(store.Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "READY")
	}
}

func generationHandler(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := c.Generation().Current(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"generation": n})
	}
}

func invalidateHandler(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := c.Invalidate(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"generation": n})
	}
}

func purgeHandler(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathID := chi.URLParam(r, "pathID")
		n, err := c.Purge(r.Context(), pathID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"path_id": pathID, "deleted": n})
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrPurgeUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
