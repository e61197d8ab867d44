package cache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/viewcache/internal/testutil"
	"github.com/Sternrassler/viewcache/pkg/reqctx"
	"github.com/Sternrassler/viewcache/pkg/store"
)

const testPathID = "blog.post_detail"

func newTestCache(t *testing.T, cfg Config) (*Cache, *testutil.MockStore) {
	t.Helper()
	st := testutil.NewMockStore()
	return New(cfg, st, WithLogger(zerolog.Nop())), st
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestCache_RoundTrip(t *testing.T) {
	c, st := newTestCache(t, DefaultConfig())
	view := testutil.NewMockView("<h1>Hello</h1>")
	h := c.MustPage(time.Minute, testPathID)(view)

	hitsBefore := promtest.ToFloat64(CacheHits.WithLabelValues(testPathID))

	first := serve(h, http.MethodGet, "/posts/hello/")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "<h1>Hello</h1>", first.Body.String())
	etag := first.Header().Get("ETag")
	require.True(t, strings.HasPrefix(etag, testPathID+"/"), "ETag = %q", etag)
	assert.Equal(t, 1, view.Calls())
	assert.Equal(t, time.Minute, st.LastTTL["1:"+etag])

	second := serve(h, http.MethodGet, "/posts/hello/")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "<h1>Hello</h1>", second.Body.String())
	assert.Equal(t, etag, second.Header().Get("ETag"))
	assert.Equal(t, DefaultContentType, second.Header().Get("Content-Type"))
	assert.Equal(t, 1, view.Calls(), "handler must not run on a hit")

	assert.Equal(t, hitsBefore+1, promtest.ToFloat64(CacheHits.WithLabelValues(testPathID)))
}

func TestCache_DistinctRequests(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	h := c.MustPage(time.Minute, testPathID)(testutil.NewEchoView())

	a := serve(h, http.MethodGet, "/posts/a/?page=1")
	b := serve(h, http.MethodGet, "/posts/a/?page=2")
	assert.NotEqual(t, a.Header().Get("ETag"), b.Header().Get("ETag"))
	assert.Contains(t, b.Body.String(), "page=2")

	// Same parameters in another order hit the first entry.
	c1 := serve(h, http.MethodGet, "/posts/b/?x=1&y=2")
	c2 := serve(h, http.MethodGet, "/posts/b/?y=2&x=1")
	assert.Equal(t, c1.Header().Get("ETag"), c2.Header().Get("ETag"))
	assert.Equal(t, c1.Body.String(), c2.Body.String())
}

func TestCache_PerUserAndLanguage(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	h := c.MustPage(time.Minute, testPathID)(testutil.NewEchoView())

	do := func(user string, lang string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/dashboard/", nil)
		ctx := r.Context()
		if user != "" {
			ctx = reqctx.WithUser(ctx, reqctx.User{ID: user, Authenticated: true})
		}
		if lang != "" {
			ctx = reqctx.WithLanguage(ctx, lang)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r.WithContext(ctx))
		return w
	}

	alice := do("1", "")
	bob := do("2", "")
	assert.NotEqual(t, alice.Header().Get("ETag"), bob.Header().Get("ETag"))
	assert.Contains(t, bob.Body.String(), "user=2", "bob must not see alice's page")

	de := do("", "de")
	en := do("", "en-us")
	assert.NotEqual(t, de.Header().Get("ETag"), en.Header().Get("ETag"))
}

func TestCache_RequestBypass(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		prepare func(*http.Request) *http.Request
	}{
		{name: "POST", method: http.MethodPost},
		{name: "PUT", method: http.MethodPut},
		{
			name:   "pending messages",
			method: http.MethodGet,
			prepare: func(r *http.Request) *http.Request {
				m := &reqctx.Messages{}
				m.Add("Post saved")
				return r.WithContext(reqctx.WithMessages(r.Context(), m))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, st := newTestCache(t, DefaultConfig())
			view := testutil.NewMockView("<p>form</p>")
			h := c.MustPage(time.Minute, testPathID)(view)

			for i := 0; i < 2; i++ {
				r := httptest.NewRequest(tt.method, "/posts/new/", nil)
				if tt.prepare != nil {
					r = tt.prepare(r)
				}
				w := httptest.NewRecorder()
				h.ServeHTTP(w, r)
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Empty(t, w.Header().Get("ETag"))
			}

			assert.Equal(t, 2, view.Calls())
			assert.Equal(t, 0, st.GetCount, "bypassed requests must not touch the store")
			assert.Equal(t, 0, st.GetSetCount())
		})
	}
}

func TestCache_DisabledNeverTouchesStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disabled = true
	c, st := newTestCache(t, cfg)
	view := testutil.NewMockView("<p>x</p>")
	h := c.MustPage(time.Minute, testPathID)(view)

	serve(h, http.MethodGet, "/")
	serve(h, http.MethodGet, "/")
	assert.Equal(t, 2, view.Calls())
	assert.Empty(t, st.Keys())
}

func TestCache_ResponseNotStored(t *testing.T) {
	tests := []struct {
		name       string
		resp       testutil.MockViewResponse
		wantStatus int
	}{
		{name: "not found", resp: testutil.NewNotFoundResponse(), wantStatus: http.StatusNotFound},
		{name: "pragma no-cache", resp: testutil.NewNoCacheResponse("<p>x</p>"), wantStatus: http.StatusOK},
		{name: "vary cookie", resp: testutil.NewVaryCookieResponse("<p>x</p>"), wantStatus: http.StatusOK},
		{name: "csrf token", resp: testutil.NewFormResponse("<form></form>"), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, st := newTestCache(t, DefaultConfig())
			view := testutil.NewMockView("")
			view.SetResponse(tt.resp)
			h := c.MustPage(time.Minute, testPathID)(view)

			first := serve(h, http.MethodGet, "/posts/x/")
			second := serve(h, http.MethodGet, "/posts/x/")

			assert.Equal(t, tt.wantStatus, first.Code)
			assert.Equal(t, tt.resp.Body, second.Body.String())
			assert.Equal(t, 2, view.Calls())
			assert.Equal(t, 0, st.GetSetCount())
			assert.NotEmpty(t, first.Header().Get("ETag"), "validator header is set even when not stored")
		})
	}
}

func TestCache_Expiry(t *testing.T) {
	c, st := newTestCache(t, DefaultConfig())
	view := testutil.NewMockView("<p>x</p>")
	h := c.MustPage(10*time.Second, testPathID)(view)

	serve(h, http.MethodGet, "/")
	serve(h, http.MethodGet, "/")
	require.Equal(t, 1, view.Calls())

	st.Advance(11 * time.Second)
	serve(h, http.MethodGet, "/")
	assert.Equal(t, 2, view.Calls())
}

func TestCache_Invalidate(t *testing.T) {
	c, st := newTestCache(t, DefaultConfig())
	st.Put(DefaultGenerationKey, []byte("3"))
	view := testutil.NewMockView("<p>v1</p>")
	h := c.MustPage(time.Minute, testPathID)(view)

	before := serve(h, http.MethodGet, "/posts/hello/")
	require.Equal(t, 1, view.Calls())

	gen, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), gen)
	assert.Equal(t, float64(4), promtest.ToFloat64(CurrentGeneration))

	view.SetResponse(testutil.NewPageResponse("<p>v2</p>"))
	after := serve(h, http.MethodGet, "/posts/hello/")
	assert.Equal(t, 2, view.Calls())
	assert.Equal(t, "<p>v2</p>", after.Body.String())
	assert.NotEqual(t, before.Header().Get("ETag"), after.Header().Get("ETag"))

	// The orphaned entry still sits in the store until it expires.
	_, ok, _ := st.Get(context.Background(), "3:"+before.Header().Get("ETag"))
	assert.True(t, ok)
}

func TestCache_Purge(t *testing.T) {
	c, st := newTestCache(t, DefaultConfig())
	detail := c.MustPage(time.Minute, testPathID)(testutil.NewEchoView())
	list := c.MustPage(time.Minute, "blog.post_list")(testutil.NewEchoView())

	serve(detail, http.MethodGet, "/posts/a/")
	serve(detail, http.MethodGet, "/posts/b/")
	serve(list, http.MethodGet, "/posts/")

	n, err := c.Purge(context.Background(), testPathID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Generation counter and the other view survive.
	assert.Len(t, st.Keys(), 2)

	t.Run("metacharacters match literally", func(t *testing.T) {
		for _, pathID := range []string{"*", "blog.post_lis?", "[b]log.post_list"} {
			n, err := c.Purge(context.Background(), pathID)
			require.NoError(t, err)
			assert.Zero(t, n, pathID)
		}
		assert.Len(t, st.Keys(), 2)
	})

	t.Run("unsupported", func(t *testing.T) {
		bare := New(DefaultConfig(), testutil.NewBareStore(testutil.NewMockStore()), WithLogger(zerolog.Nop()))
		_, err := bare.Purge(context.Background(), testPathID)
		assert.ErrorIs(t, err, store.ErrPurgeUnsupported)
	})
}

func TestCache_Degrade(t *testing.T) {
	tests := []struct {
		name  string
		setup func(st *testutil.MockStore) store.Store
		op    string
	}{
		{
			name: "generation read",
			setup: func(st *testutil.MockStore) store.Store {
				st.FailGet(true)
				return st
			},
			op: OpGeneration,
		},
		{
			name: "entry read",
			setup: func(st *testutil.MockStore) store.Store {
				return &failingGetStore{MockStore: st, skip: DefaultGenerationKey}
			},
			op: OpGet,
		},
		{
			name: "entry write",
			setup: func(st *testutil.MockStore) store.Store {
				st.Put(DefaultGenerationKey, []byte("1"))
				st.FailSet(true)
				return st
			},
			op: OpSet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(DefaultConfig(), tt.setup(testutil.NewMockStore()), WithLogger(zerolog.Nop()))
			view := testutil.NewMockView("<p>ok</p>")
			h := c.MustPage(time.Minute, testPathID)(view)

			errsBefore := promtest.ToFloat64(CacheErrors.WithLabelValues(tt.op))
			w := serve(h, http.MethodGet, "/posts/x/")

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "<p>ok</p>", w.Body.String())
			assert.Equal(t, 1, view.Calls(), "handler runs exactly once")
			assert.Equal(t, errsBefore+1, promtest.ToFloat64(CacheErrors.WithLabelValues(tt.op)))
			if tt.op == OpSet {
				assert.Empty(t, w.Header().Get("ETag"), "failed write carries no validator header")
			}
		})
	}
}

// failingGetStore fails every Get except the one for skip.
type failingGetStore struct {
	*testutil.MockStore
	skip string
}

func (s *failingGetStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == s.skip {
		return s.MockStore.Get(ctx, key)
	}
	return nil, false, errors.Join(store.ErrUnavailable, testutil.ErrInjected)
}

func TestCache_Strict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strict = true

	t.Run("Handle returns StoreError", func(t *testing.T) {
		c, st := newTestCache(t, cfg)
		st.FailGet(true)
		view := testutil.NewMockView("<p>ok</p>")

		w := httptest.NewRecorder()
		err := c.Handle(w, httptest.NewRequest(http.MethodGet, "/", nil), time.Minute, testPathID, view)

		var serr *StoreError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, OpGeneration, serr.Op)
		assert.Equal(t, testPathID, serr.PathID)
		assert.ErrorIs(t, err, store.ErrUnavailable)
		assert.Equal(t, 0, view.Calls())
	})

	t.Run("default error handler", func(t *testing.T) {
		c, st := newTestCache(t, cfg)
		st.FailGet(true)
		view := testutil.NewMockView("<p>ok</p>")
		w := serve(c.MustPage(time.Minute, testPathID)(view), http.MethodGet, "/")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("write failure", func(t *testing.T) {
		st := testutil.NewMockStore()
		var got error
		var mu sync.Mutex
		c := New(cfg, st,
			WithLogger(zerolog.Nop()),
			WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				mu.Lock()
				got = err
				mu.Unlock()
				w.WriteHeader(http.StatusTeapot)
			}),
		)
		_, err := c.Generation().Current(context.Background())
		require.NoError(t, err)
		st.FailSet(true)

		w := serve(c.MustPage(time.Minute, testPathID)(testutil.NewMockView("<p>ok</p>")), http.MethodGet, "/")
		assert.Equal(t, http.StatusTeapot, w.Code)

		var serr *StoreError
		require.ErrorAs(t, got, &serr)
		assert.Equal(t, OpSet, serr.Op)
		assert.NotEmpty(t, serr.Key)
	})
}

func TestCache_Page_ConfigurationError(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	_, err := c.Page(time.Minute, "")
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "improperly configured")

	_, err = c.Page(0, testPathID)
	assert.ErrorAs(t, err, &cerr)

	assert.Panics(t, func() { c.MustPage(time.Minute, "") })
}

func TestCache_Wrap(t *testing.T) {
	c, st := newTestCache(t, DefaultConfig())

	t.Run("default duration", func(t *testing.T) {
		view := testutil.CacheableView{MockView: testutil.NewMockView("<p>x</p>"), Path: "blog.post_list"}
		h, err := c.Wrap(view)
		require.NoError(t, err)

		w := serve(h, http.MethodGet, "/posts/")
		assert.Equal(t, DefaultCacheDuration, st.LastTTL["1:"+w.Header().Get("ETag")])
	})

	t.Run("own duration", func(t *testing.T) {
		view := testutil.CacheableView{MockView: testutil.NewMockView("<p>x</p>"), Path: "blog.archive", TTL: time.Hour}
		h, err := c.Wrap(view)
		require.NoError(t, err)

		w := serve(h, http.MethodGet, "/archive/")
		assert.Equal(t, time.Hour, st.LastTTL["1:"+w.Header().Get("ETag")])
	})

	t.Run("missing path identifier", func(t *testing.T) {
		_, err := c.Wrap(testutil.CacheableView{MockView: testutil.NewMockView("")})
		var cerr *ConfigurationError
		assert.ErrorAs(t, err, &cerr)
	})

	t.Run("negative duration", func(t *testing.T) {
		_, err := c.Wrap(testutil.CacheableView{MockView: testutil.NewMockView(""), Path: "x", TTL: -time.Second})
		var cerr *ConfigurationError
		assert.ErrorAs(t, err, &cerr)
	})
}

func TestCache_CustomValidatorHeader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidatorHeader = "X-Cache-Key"
	c, _ := newTestCache(t, cfg)
	h := c.MustPage(time.Minute, testPathID)(testutil.NewMockView("<p>x</p>"))

	w := serve(h, http.MethodGet, "/")
	assert.NotEmpty(t, w.Header().Get("X-Cache-Key"))
	assert.Empty(t, w.Header().Get("ETag"))
}

func TestCache_ConcurrentMisses(t *testing.T) {
	c, st := newTestCache(t, DefaultConfig())
	view := testutil.NewMockView("<p>x</p>")
	h := c.MustPage(time.Minute, testPathID)(view)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := serve(h, http.MethodGet, "/posts/x/")
			assert.Equal(t, "<p>x</p>", w.Body.String())
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, view.Calls(), 1)
	assert.Len(t, st.Keys(), 2) // generation + one entry
}

func TestNew_NilStorePanics(t *testing.T) {
	assert.Panics(t, func() { New(DefaultConfig(), nil) })
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{}, testutil.NewMockStore())
	assert.Equal(t, DefaultConfig(), c.Config())
	assert.Equal(t, DefaultGenerationKey, c.Generation().Key())
}
