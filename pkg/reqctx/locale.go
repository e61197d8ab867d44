package reqctx

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// Locale returns middleware that resolves the request's language from the
// Accept-Language header against the supported tags and stores it with
// WithLanguage. The first supported tag is the fallback.
func Locale(supported ...language.Tag) func(http.Handler) http.Handler {
	if len(supported) == 0 {
		supported = []language.Tag{language.AmericanEnglish}
	}
	matcher := language.NewMatcher(supported)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
			_, idx, _ := matcher.Match(tags...)
			lang := strings.ToLower(supported[idx].String())

			next.ServeHTTP(w, r.WithContext(WithLanguage(r.Context(), lang)))
		})
	}
}
