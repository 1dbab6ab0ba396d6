package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"storygate/pkg/requestcontext"
)

func TestMiddleware_PropagatesValidHeader(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	r.Header.Set(Header, "mobile-7f3a_42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "mobile-7f3a_42", seen)
	assert.Equal(t, "mobile-7f3a_42", w.Header().Get(Header))
}

func TestMiddleware_ReplacesInvalidHeader(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	r.Header.Set(Header, "abc\ndef injected")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.NotEqual(t, "abc\ndef injected", seen)
	assert.NotEmpty(t, seen)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("a1B-2_c"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("has space"))
	assert.False(t, Valid("semi;colon"))
	assert.False(t, Valid(string(make([]byte, 100))))
}
