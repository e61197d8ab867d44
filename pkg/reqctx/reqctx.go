// Package reqctx carries per-request collaborators the view cache consults:
// the authenticated identity, the active language, queued one-shot messages
// and whether a CSRF token was handed out while rendering.
//
// Each collaborator is optional. Accessors return the zero value when the
// corresponding middleware never ran, so an application without sessions or
// localization still works.
package reqctx

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

type ctxKey int

const (
	userKey ctxKey = iota
	languageKey
	messagesKey
	csrfKey
)

// User is the identity attached to a request.
type User struct {
	ID            string
	Authenticated bool
}

// WithUser attaches an identity to ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserID returns the authenticated user's id, or "" when the request is
// anonymous or no identity was attached.
func UserID(r *http.Request) string {
	u, ok := r.Context().Value(userKey).(User)
	if !ok || !u.Authenticated {
		return ""
	}
	return u.ID
}

// WithLanguage sets the active language for the request.
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey, lang)
}

// Language returns the active language, or "" if none was set.
func Language(r *http.Request) string {
	lang, _ := r.Context().Value(languageKey).(string)
	return lang
}

// Messages is a queue of one-shot notifications to show the user on the next
// rendered page. It is safe for concurrent use.
type Messages struct {
	mu    sync.Mutex
	queue []string
}

// Add queues a message.
func (m *Messages) Add(msg string) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
}

// Len reports the number of pending messages.
func (m *Messages) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Drain returns and clears the pending messages.
func (m *Messages) Drain() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

// WithMessages attaches a message queue to ctx.
func WithMessages(ctx context.Context, m *Messages) context.Context {
	return context.WithValue(ctx, messagesKey, m)
}

// MessagesFrom returns the request's message queue, or nil.
func MessagesFrom(r *http.Request) *Messages {
	m, _ := r.Context().Value(messagesKey).(*Messages)
	return m
}

// PendingMessages returns the number of queued messages for the request.
func PendingMessages(r *http.Request) int {
	if m := MessagesFrom(r); m != nil {
		return m.Len()
	}
	return 0
}

// CSRF records whether a CSRF token was consumed while handling a request.
type CSRF struct {
	used atomic.Bool
}

// WithCSRF attaches a fresh CSRF tracker to ctx.
func WithCSRF(ctx context.Context) (context.Context, *CSRF) {
	c := &CSRF{}
	return context.WithValue(ctx, csrfKey, c), c
}

// EnsureCSRF returns r unchanged if it already carries a tracker, otherwise a
// shallow copy of r with one attached.
func EnsureCSRF(r *http.Request) *http.Request {
	if _, ok := r.Context().Value(csrfKey).(*CSRF); ok {
		return r
	}
	ctx, _ := WithCSRF(r.Context())
	return r.WithContext(ctx)
}

// UseCSRFToken marks the request's CSRF token as handed out. Handlers call it
// when they embed a token in the response.
func UseCSRFToken(r *http.Request) {
	if c, ok := r.Context().Value(csrfKey).(*CSRF); ok {
		c.used.Store(true)
	}
}

// CSRFUsed reports whether a CSRF token was consumed for the request.
func CSRFUsed(r *http.Request) bool {
	c, ok := r.Context().Value(csrfKey).(*CSRF)
	return ok && c.used.Load()
}
