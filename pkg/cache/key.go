package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/viewcache/pkg/reqctx"
)

// keyDelimiter joins the fingerprint material and separates the path
// identifier from the digest.
const keyDelimiter = "/"

// Fingerprint is the material a cache key is derived from.
type Fingerprint struct {
	// PathID is the caller-chosen logical view name, e.g. "blog.post_detail".
	PathID string

	// Prefix is Config.KeyPrefix.
	Prefix string

	// Generation is the current generation number.
	Generation int64

	// Path is the escaped request path.
	Path string

	// Query holds the request's query parameters.
	Query url.Values

	// Language is the active language.
	Language string

	// UserID is the authenticated user's id, "" for anonymous requests.
	UserID string
}

// material joins the hashed inputs in their fixed order.
func (f Fingerprint) material() string {
	return strings.Join([]string{
		f.Prefix,
		strconv.FormatInt(f.Generation, 10),
		f.Path,
		f.Query.Encode(), // keys sorted, value order kept
		f.Language,
		f.UserID,
	}, keyDelimiter)
}

// String returns the cache key: the path identifier, unhashed, followed by
// the hex SHA-256 of the material.
//
// Example:
//
//	blog.post_detail/9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
func (f Fingerprint) String() string {
	sum := sha256.Sum256([]byte(f.material()))
	return f.PathID + keyDelimiter + hex.EncodeToString(sum[:])
}

// Key builds the cache key for r under pathID. It fails only when the
// generation counter cannot be read.
func (c *Cache) Key(r *http.Request, pathID string) (string, error) {
	fp, err := c.fingerprint(r, pathID)
	if err != nil {
		return "", err
	}
	return fp.String(), nil
}

func (c *Cache) fingerprint(r *http.Request, pathID string) (Fingerprint, error) {
	gen, err := c.gen.Current(r.Context())
	if err != nil {
		return Fingerprint{}, err
	}

	lang := reqctx.Language(r)
	if lang == "" {
		lang = c.cfg.DefaultLanguage
	}

	return Fingerprint{
		PathID:     pathID,
		Prefix:     c.cfg.KeyPrefix,
		Generation: gen,
		Path:       r.URL.EscapedPath(),
		Query:      r.URL.Query(),
		Language:   lang,
		UserID:     reqctx.UserID(r),
	}, nil
}

// entryKey scopes a cache key under its generation, the store-level version
// namespace entries are written to.
func entryKey(gen int64, key string) string {
	return strconv.FormatInt(gen, 10) + ":" + key
}

// globEscaper quotes the metacharacters shared by Redis MATCH and path.Match.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// PurgePattern returns the store glob matching every entry of pathID across
// all generations. pathID is matched literally.
func PurgePattern(pathID string) string {
	return "*:" + globEscaper.Replace(pathID) + keyDelimiter + "*"
}
