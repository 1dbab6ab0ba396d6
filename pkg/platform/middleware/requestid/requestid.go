// Package requestid assigns a correlation id to every request. An inbound
// X-Request-ID is trusted only when it is a syntactically valid identifier;
// anything else is replaced with a fresh UUID so log injection via the header
// is not possible.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"storygate/pkg/requestcontext"
)

// Header is the inbound/outbound correlation id header.
const Header = "X-Request-ID"

const maxLength = 64

// Middleware resolves the correlation id, stores it in the request context and
// echoes it back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !Valid(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		ctx = requestcontext.WithPath(ctx, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Valid reports whether id is acceptable as a correlation id: non-empty, at
// most 64 characters, ASCII letters/digits/hyphen/underscore only.
func Valid(id string) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
