// Package httptransport assembles the public HTTP surface: middleware chain,
// auth routes, health and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storygate/internal/auth/handler"
	gwerrors "storygate/pkg/gateway-errors"
	"storygate/pkg/platform/httputil"
	"storygate/pkg/platform/middleware/metadata"
	"storygate/pkg/platform/middleware/requestid"
	"storygate/pkg/requestcontext"
)

const requestTimeout = 30 * time.Second

// HealthCheck probes one dependency for the /healthz endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter wires all public endpoints behind the shared middleware chain.
func NewRouter(auth *handler.Handler, logger *slog.Logger, checks ...HealthCheck) http.Handler {
	r := chi.NewRouter()

	r.Use(recovery(logger))
	r.Use(requestid.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(accessLog(logger))
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(checks))

	auth.Register(r)
	return r
}

// recovery converts panics into the standard error envelope instead of a torn
// connection.
func recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("path", r.URL.Path),
						slog.String("request_id", requestcontext.RequestID(r.Context())),
					)
					httputil.WriteError(w, r, gwerrors.New(gwerrors.CodeInternal, ""))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", requestcontext.RequestID(r.Context())),
			)
		})
	}
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				deps[c.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[c.Name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		httputil.WriteJSON(w, status, body)
	}
}
