package main

import (
	"context"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Sternrassler/viewcache/pkg/reqctx"
)

type post struct {
	Slug     string
	Title    string
	Body     string
	Comments []string
}

// blog is the demo application: an in-memory post list plus per-user
// message queues standing in for sessions.
type blog struct {
	mu       sync.RWMutex
	posts    map[string]*post
	sessions map[string]*reqctx.Messages

	// changed is called after a post was modified.
	changed func(ctx context.Context, pathID string)
}

func newBlog() *blog {
	return &blog{
		posts: map[string]*post{
			"hello-world": {Slug: "hello-world", Title: "Hello, world", Body: "The first post."},
			"caching":     {Slug: "caching", Title: "On caching", Body: "Generations make invalidation cheap."},
		},
		sessions: make(map[string]*reqctx.Messages),
		changed:  func(context.Context, string) {},
	}
}

// userCookie carries the demo identity; there is no real authentication.
const userCookie = "user"

// sessionMiddleware attaches the demo identity, message queue and CSRF
// tracker to the request.
func sessionMiddleware(b *blog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if c, err := r.Cookie(userCookie); err == nil && c.Value != "" {
				ctx = reqctx.WithUser(ctx, reqctx.User{ID: c.Value, Authenticated: true})
				ctx = reqctx.WithMessages(ctx, b.messages(c.Value))
			}
			ctx, _ = reqctx.WithCSRF(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (b *blog) messages(user string) *reqctx.Messages {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.sessions[user]
	if !ok {
		m = &reqctx.Messages{}
		b.sessions[user] = m
	}
	return m
}

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="{{.Lang}}"><head><title>{{.Title}}</title></head><body>
{{range .Messages}}<p class="message">{{.}}</p>{{end}}
{{if .User}}<p>Signed in as {{.User}}</p>{{end}}
<h1>{{.Title}}</h1>
{{.Content}}
<footer>Rendered {{.Rendered}}</footer>
</body></html>
`))

type page struct {
	Lang     string
	Title    string
	User     string
	Messages []string
	Content  template.HTML
	Rendered string
}

func render(w http.ResponseWriter, r *http.Request, title string, content template.HTML) {
	p := page{
		Lang:     reqctx.Language(r),
		Title:    title,
		User:     reqctx.UserID(r),
		Content:  content,
		Rendered: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if m := reqctx.MessagesFrom(r); m != nil {
		p.Messages = m.Drain()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (b *blog) listPosts(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	slugs := make([]string, 0, len(b.posts))
	for s := range b.posts {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)

	var sb strings.Builder
	sb.WriteString("<ul>")
	for _, s := range slugs {
		p := b.posts[s]
		sb.WriteString(`<li><a href="/posts/` + template.HTMLEscapeString(p.Slug) + `">` +
			template.HTMLEscapeString(p.Title) + "</a></li>")
	}
	sb.WriteString("</ul>")
	b.mu.RUnlock()

	render(w, r, "Posts", template.HTML(sb.String()))
}

func (b *blog) showPost(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	p, ok := b.posts[chi.URLParam(r, "slug")]
	var (
		title, body string
		comments    []string
	)
	if ok {
		title, body = p.Title, p.Body
		comments = append(comments, p.Comments...)
	}
	b.mu.RUnlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	var sb strings.Builder
	sb.WriteString("<p>" + template.HTMLEscapeString(body) + "</p><ul>")
	for _, c := range comments {
		sb.WriteString("<li>" + template.HTMLEscapeString(c) + "</li>")
	}
	sb.WriteString("</ul>")

	if reqctx.UserID(r) != "" {
		// Forms embed a CSRF token, which keeps this response out of the cache.
		reqctx.UseCSRFToken(r)
		sb.WriteString(`<form method="post" action="/posts/` + template.HTMLEscapeString(p.Slug) +
			`/comments"><textarea name="comment"></textarea><button>Comment</button></form>`)
	} else {
		sb.WriteString("<p>Sign in to comment.</p>")
	}

	render(w, r, title, template.HTML(sb.String()))
}

func (b *blog) addComment(w http.ResponseWriter, r *http.Request) {
	user := reqctx.UserID(r)
	if user == "" {
		http.Error(w, "sign in to comment", http.StatusForbidden)
		return
	}
	comment := strings.TrimSpace(r.FormValue("comment"))
	slug := chi.URLParam(r, "slug")

	b.mu.Lock()
	p, ok := b.posts[slug]
	if ok && comment != "" {
		p.Comments = append(p.Comments, user+": "+comment)
	}
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	b.changed(r.Context(), pathPostDetail)
	if m := reqctx.MessagesFrom(r); m != nil {
		m.Add("Comment added.")
	}
	http.Redirect(w, r, "/posts/"+slug, http.StatusSeeOther)
}

// aboutView declares its own cache settings and uses the default duration.
type aboutView struct{}

func (aboutView) CachePath() string            { return pathAbout }
func (aboutView) CacheDuration() time.Duration { return 0 }

func (aboutView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render(w, r, "About", "<p>A blog served through a generation-versioned view cache.</p>")
}
