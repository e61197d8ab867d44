package testutil

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/viewcache/pkg/reqctx"
)

// MockViewResponse defines what a MockView renders.
type MockViewResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string

	// UseCSRF makes the view hand out a CSRF token while rendering.
	UseCSRF bool
}

// MockView is a configurable handler that counts how often it runs.
type MockView struct {
	mu   sync.RWMutex
	resp MockViewResponse

	// Tracking
	CallCount   int
	LastRequest *http.Request
}

// NewMockView creates a view rendering a 200 HTML page with body.
func NewMockView(body string) *MockView {
	return &MockView{resp: NewPageResponse(body)}
}

// SetResponse replaces the rendered response.
func (v *MockView) SetResponse(resp MockViewResponse) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resp = resp
}

// ServeHTTP implements http.Handler.
func (v *MockView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	v.CallCount++
	v.LastRequest = r
	resp := v.resp
	v.mu.Unlock()

	if resp.UseCSRF {
		reqctx.UseCSRFToken(r)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// Calls returns the number of times the view ran.
func (v *MockView) Calls() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.CallCount
}

// Reset clears all tracking counters.
func (v *MockView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCount = 0
	v.LastRequest = nil
}

// CacheableView is a MockView that declares its own cache settings.
type CacheableView struct {
	*MockView
	Path string
	TTL  time.Duration
}

// CachePath returns the view's path identifier.
func (v CacheableView) CachePath() string { return v.Path }

// CacheDuration returns the view's TTL.
func (v CacheableView) CacheDuration() time.Duration { return v.TTL }

// NewPageResponse creates a standard 200 OK HTML response.
func NewPageResponse(body string) MockViewResponse {
	return MockViewResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockViewResponse {
	return MockViewResponse{
		StatusCode: http.StatusNotFound,
		Body:       "<h1>Not Found</h1>",
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewNoCacheResponse creates a 200 response marked "Pragma: no-cache".
func NewNoCacheResponse(body string) MockViewResponse {
	resp := NewPageResponse(body)
	resp.Headers["Pragma"] = "no-cache"
	return resp
}

// NewVaryCookieResponse creates a 200 response marked "Vary: Cookie".
func NewVaryCookieResponse(body string) MockViewResponse {
	resp := NewPageResponse(body)
	resp.Headers["Vary"] = "Cookie"
	return resp
}

// NewFormResponse creates a 200 response that uses a CSRF token.
func NewFormResponse(body string) MockViewResponse {
	resp := NewPageResponse(body)
	resp.UseCSRF = true
	return resp
}

// NewEchoView returns a handler that renders the request path and query, so
// tests can tell responses for different requests apart.
func NewEchoView() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<p>%s?%s lang=%s user=%s</p>",
			r.URL.Path, r.URL.RawQuery, reqctx.Language(r), reqctx.UserID(r))
	}
}
