package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"storygate/internal/auth/token"
	gwerrors "storygate/pkg/gateway-errors"
	"storygate/pkg/platform/httputil"
	"storygate/pkg/requestcontext"
)

// Authorizer validates a bearer access token.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string) (*token.Claims, error)
}

// RequireAuth guards session endpoints. On success the user and session ids
// from the access token are placed in the request context.
func RequireAuth(auth Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, r, gwerrors.New(gwerrors.CodeUnauthorizedAccess, "missing bearer token"))
				return
			}

			claims, err := auth.Authorize(ctx, raw)
			if err != nil {
				logger.WarnContext(ctx, "access token rejected",
					slog.String("request_id", requestcontext.RequestID(ctx)),
					slog.String("error_code", string(gwerrors.CodeOf(err))),
				)
				httputil.WriteError(w, r, err)
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.Subject)
			ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}
