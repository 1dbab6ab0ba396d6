// Package requestcontext provides HTTP-independent accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
package requestcontext

import "context"

type (
	requestIDKey struct{}
	userIDKey    struct{}
	sessionIDKey struct{}
	pathKey      struct{}
)

// RequestID retrieves the correlation id for the current request.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// UserID retrieves the authenticated user id, or "" when unauthenticated.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects an authenticated user id into the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// SessionID retrieves the session id of the presented access token, or ""
// when unauthenticated.
func SessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithSessionID injects the authenticated session id into the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// Path retrieves the request path recorded by the router middleware.
func Path(ctx context.Context) string {
	if v, ok := ctx.Value(pathKey{}).(string); ok {
		return v
	}
	return ""
}

// WithPath injects the request path into the context.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}
