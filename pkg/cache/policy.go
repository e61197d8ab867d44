package cache

import (
	"net/http"

	"github.com/Sternrassler/viewcache/pkg/reqctx"
)

// BypassReason explains why a request or response skipped the cache.
// The empty reason means cacheable.
type BypassReason string

const (
	BypassDisabled   BypassReason = "disabled"
	BypassMethod     BypassReason = "method"
	BypassMessages   BypassReason = "messages"
	BypassStatus     BypassReason = "status"
	BypassNoCache    BypassReason = "no_cache"
	BypassVaryCookie BypassReason = "vary_cookie"
	BypassCSRF       BypassReason = "csrf"
)

// RequestCacheable reports whether r may be served from or stored in cache:
// caching is enabled, the method is GET and no one-shot messages are waiting
// to be shown (a cached page would swallow them).
func (c *Cache) RequestCacheable(r *http.Request) bool {
	return c.requestBypass(r) == ""
}

func (c *Cache) requestBypass(r *http.Request) BypassReason {
	switch {
	case c.cfg.Disabled:
		return BypassDisabled
	case r.Method != http.MethodGet:
		return BypassMethod
	case reqctx.PendingMessages(r) > 0:
		return BypassMessages
	}
	return ""
}

// ResponseCacheable reports whether a response with the given status and
// headers, produced for r, may be stored: caching is enabled, the status is
// 200, the response is not marked "Pragma: no-cache" or "Vary: Cookie", and
// no CSRF token was handed out while rendering it.
func (c *Cache) ResponseCacheable(r *http.Request, status int, header http.Header) bool {
	return c.responseBypass(r, status, header) == ""
}

func (c *Cache) responseBypass(r *http.Request, status int, header http.Header) BypassReason {
	switch {
	case c.cfg.Disabled:
		return BypassDisabled
	case status != http.StatusOK:
		return BypassStatus
	case header.Get("Pragma") == "no-cache":
		return BypassNoCache
	case header.Get("Vary") == "Cookie":
		return BypassVaryCookie
	case reqctx.CSRFUsed(r):
		return BypassCSRF
	}
	return ""
}
