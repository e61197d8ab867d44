package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// HTTPMiddleware attaches logger to each request context (retrievable with
// hlog.FromRequest) and writes one access log entry per request.
func HTTPMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	withLogger := hlog.NewHandler(logger)
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		ev := hlog.FromRequest(r).Info()
		if status >= http.StatusInternalServerError {
			ev = hlog.FromRequest(r).Warn()
		}
		ev.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status_code", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request served")
	})

	return func(next http.Handler) http.Handler {
		return withLogger(access(next))
	}
}
