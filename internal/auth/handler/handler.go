// Package handler exposes the auth flows over HTTP. It stays thin: decode,
// validate, delegate to the service, translate errors into the standard
// envelope.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storygate/internal/auth/device"
	"storygate/internal/auth/models"
	"storygate/internal/auth/service"
	"storygate/internal/auth/token"
	gwerrors "storygate/pkg/gateway-errors"
	"storygate/pkg/platform/httputil"
	"storygate/pkg/requestcontext"
)

// Service is what the handler needs from the auth orchestrator.
type Service interface {
	Authenticate(ctx context.Context, params service.AuthenticateParams) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Revoke(ctx context.Context, refreshToken string) (*service.RevokeResult, error)
	RevokeAll(ctx context.Context, userID string) ([]*models.Session, error)
	Sessions(ctx context.Context, userID, currentSessionID string) ([]models.SessionSummary, error)
	Authorize(ctx context.Context, accessToken string) (*token.Claims, error)
}

// Handler handles the /auth endpoints.
type Handler struct {
	logger *slog.Logger
	auth   Service
}

// New creates a new auth Handler.
func New(auth Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		auth:   auth,
	}
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Post("/google", h.handleSignIn(models.ProviderGoogle))
		r.Post("/apple", h.handleSignIn(models.ProviderApple))
		r.Post("/refresh", h.handleRefresh)
		r.Post("/revoke", h.handleRevoke)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.auth, h.logger))
			r.Get("/sessions", h.handleSessions)
			r.Post("/revoke-all", h.handleRevokeAll)
		})
	})
}

// handleStatus is a connectivity check. No sensitive data, no auth.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "available",
		"service": "auth",
	})
}

func (h *Handler) handleSignIn(provider models.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SignInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, r, gwerrors.New(gwerrors.CodeMalformedJSON, "request body is not valid JSON"))
			return
		}
		if err := req.Validate(); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		result, err := h.auth.Authenticate(ctx, service.AuthenticateParams{
			Provider: provider,
			IDToken:  req.IDToken,
			Nonce:    req.Nonce,
			Device:   device.FromRequest(r),
		})
		if err != nil {
			h.logAuthFailure(ctx, provider, err)
			httputil.WriteError(w, r, err)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, FromAuthResult(result, signInMessage(provider)))
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, gwerrors.New(gwerrors.CodeMalformedJSON, "request body is not valid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	result, err := h.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		h.logger.WarnContext(ctx, "token refresh failed",
			slog.String("request_id", requestcontext.RequestID(ctx)),
			slog.String("error_code", string(gwerrors.CodeOf(err))),
		)
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromAuthResult(result, "Token refresh successful"))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, gwerrors.New(gwerrors.CodeMalformedJSON, "request body is not valid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	result, err := h.auth.Revoke(ctx, req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, RevokeResponse{
		Success: true,
		Message: result.Message,
	})
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessions, err := h.auth.Sessions(ctx, requestcontext.UserID(ctx), requestcontext.SessionID(ctx))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, SessionsResponse{
		Success:  true,
		Sessions: sessions,
		Count:    len(sessions),
	})
}

func (h *Handler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	revoked, err := h.auth.RevokeAll(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, RevokeAllResponse{
		Success:         true,
		RevokedSessions: len(revoked),
		Message:         "All sessions revoked",
	})
}

func (h *Handler) logAuthFailure(ctx context.Context, provider models.Provider, err error) {
	code := gwerrors.CodeOf(err)
	level := slog.LevelWarn
	if gwerrors.CategoryOf(code) == gwerrors.CategoryDownstream || code == gwerrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "authentication failed",
		slog.String("provider", string(provider)),
		slog.String("request_id", requestcontext.RequestID(ctx)),
		slog.String("error_code", string(code)),
		slog.String("error", err.Error()),
	)
}

func signInMessage(provider models.Provider) string {
	if provider == models.ProviderApple {
		return "Apple authentication successful"
	}
	return "Google authentication successful"
}
