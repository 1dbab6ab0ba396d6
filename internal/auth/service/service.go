// Package service orchestrates the auth flows: provider sign-in, token
// refresh, and session revocation. It composes the validator, the token
// issuer, the session manager, and the user store, and is the error
// boundary where anything unclassified becomes an internal error.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storygate/internal/audit"
	"storygate/internal/auth/metrics"
	"storygate/internal/auth/models"
	"storygate/internal/auth/store"
	"storygate/internal/auth/token"
	gwerrors "storygate/pkg/gateway-errors"
	"storygate/pkg/platform/sentinel"
	"storygate/pkg/requestcontext"
)

var tracer = otel.Tracer("storygate/internal/auth/service")

// IdentityVerifier checks a provider identity token and returns its claims.
type IdentityVerifier interface {
	Verify(ctx context.Context, tag models.Provider, rawToken, expectedNonce string) (*models.IdentityClaims, error)
}

// TokenIssuer mints and validates the gateway's own tokens.
type TokenIssuer interface {
	IssueAccess(userID string, provider models.Provider, sessionID string) (string, error)
	IssueRefresh(userID, sessionID string) (string, error)
	ValidateAccess(tokenString string) (*token.Claims, error)
	ValidateRefresh(tokenString string) (*token.Claims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// SessionManager owns session lifecycle rules.
type SessionManager interface {
	Create(ctx context.Context, userID, sessionID, refreshToken string, device models.DeviceInfo) (*models.Session, error)
	Resolve(ctx context.Context, userID, sessionID, refreshToken string) (*models.Session, error)
	Rotate(ctx context.Context, sess *models.Session, newToken string) error
	RevokeByRefreshToken(ctx context.Context, userID, sessionID, refreshToken string) (bool, error)
	RevokeAll(ctx context.Context, userID string) ([]*models.Session, error)
	ActiveSessions(ctx context.Context, userID, currentSessionID string) ([]models.SessionSummary, error)
}

// Service is the auth orchestrator.
type Service struct {
	verifier IdentityVerifier
	issuer   TokenIssuer
	sessions SessionManager
	users    store.UserStore
	auditor  audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithAuditPublisher installs the security event publisher.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.auditor = p
		}
	}
}

// WithMetrics installs the auth metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger installs a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService composes the auth orchestrator.
func NewService(verifier IdentityVerifier, issuer TokenIssuer, sessions SessionManager, users store.UserStore, opts ...Option) *Service {
	s := &Service{
		verifier: verifier,
		issuer:   issuer,
		sessions: sessions,
		users:    users,
		auditor:  audit.NopPublisher{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthenticateParams carries a provider sign-in request.
type AuthenticateParams struct {
	Provider models.Provider
	IDToken  string
	Nonce    string
	Device   models.DeviceInfo
}

// AuthResult is returned by Authenticate and Refresh.
type AuthResult struct {
	User      *models.User
	Tokens    models.TokenPair
	SessionID string
}

// Authenticate verifies a provider identity token, finds or creates the
// linked account, opens a session, and returns a gateway token pair.
func (s *Service) Authenticate(ctx context.Context, params AuthenticateParams) (result *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("auth.provider", string(params.Provider)))

	start := s.now()
	defer func() {
		err = s.boundary(ctx, err)
		s.observeAuth(ctx, params, result, err, start)
	}()

	if params.IDToken == "" {
		return nil, gwerrors.New(gwerrors.CodeMissingRequiredField, "idToken is required")
	}
	if !params.Provider.Valid() {
		return nil, gwerrors.Newf(gwerrors.CodeUnknownProvider, "unknown identity provider %q", params.Provider)
	}

	claims, err := s.verifier.Verify(ctx, params.Provider, params.IDToken, params.Nonce)
	if err != nil {
		return nil, err
	}

	user, err := s.findOrCreateUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, gwerrors.New(gwerrors.CodeAccountDeactivated, "account is deactivated")
	}

	tokens, sess, err := s.openSession(ctx, user, params.Device)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, Tokens: *tokens, SessionID: sess.ID}, nil
}

// Refresh redeems a refresh token for a new token pair, rotating the
// session's refresh token so the old one is single-use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (result *AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.Refresh")
	defer span.End()

	defer func() {
		err = s.boundary(ctx, err)
		s.observeRefresh(ctx, result, err)
	}()

	if refreshToken == "" {
		return nil, gwerrors.New(gwerrors.CodeMissingRequiredField, "refreshToken is required")
	}

	claims, err := s.issuer.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Resolve(ctx, claims.Subject, claims.SessionID, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, gwerrors.New(gwerrors.CodeUserNotFound, "account no longer exists")
		}
		return nil, gwerrors.Wrap(err, gwerrors.CodeDatabaseError, "load user")
	}
	if !user.Active {
		return nil, gwerrors.New(gwerrors.CodeAccountDeactivated, "account is deactivated")
	}

	newRefresh, err := s.issuer.IssueRefresh(user.ID, sess.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rotate(ctx, sess, newRefresh); err != nil {
		return nil, err
	}
	access, err := s.issuer.IssueAccess(user.ID, user.Provider, sess.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:      user,
		Tokens:    s.tokenPair(access, newRefresh),
		SessionID: sess.ID,
	}, nil
}

// RevokeResult reports a revocation outcome.
type RevokeResult struct {
	Found   bool
	Message string
}

// Revoke invalidates the session a refresh token belongs to. It is
// idempotent: revoking an unknown or already-revoked token succeeds with a
// different message.
func (s *Service) Revoke(ctx context.Context, refreshToken string) (result *RevokeResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.Revoke")
	defer span.End()

	defer func() { err = s.boundary(ctx, err) }()

	if refreshToken == "" {
		return nil, gwerrors.New(gwerrors.CodeMissingRequiredField, "refreshToken is required")
	}

	claims, err := s.issuer.ValidateRefresh(refreshToken)
	if err != nil {
		// A malformed or expired token has no live session; revocation of
		// nothing still succeeds.
		return &RevokeResult{Found: false, Message: "Session already revoked or not found"}, nil
	}

	found, err := s.sessions.RevokeByRefreshToken(ctx, claims.Subject, claims.SessionID, refreshToken)
	if err != nil {
		return nil, err
	}
	if !found {
		return &RevokeResult{Found: false, Message: "Session already revoked or not found"}, nil
	}

	s.metricsSessionRevoked()
	s.publish(ctx, audit.SecurityEvent{
		Action:    audit.ActionSessionRevoked,
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
	})
	return &RevokeResult{Found: true, Message: "Session revoked successfully"}, nil
}

// RevokeAll invalidates every active session of the user and returns the
// sessions it revoked.
func (s *Service) RevokeAll(ctx context.Context, userID string) (revoked []*models.Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.RevokeAll")
	defer span.End()

	defer func() { err = s.boundary(ctx, err) }()

	revoked, err = s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(revoked) > 0 {
		s.publish(ctx, audit.SecurityEvent{
			Action: audit.ActionSessionsRevoked,
			UserID: userID,
			Reason: "revoke_all",
		})
	}
	return revoked, nil
}

// Sessions lists the caller's active sessions.
func (s *Service) Sessions(ctx context.Context, userID, currentSessionID string) (out []models.SessionSummary, err error) {
	ctx, span := tracer.Start(ctx, "auth.Sessions")
	defer span.End()

	defer func() { err = s.boundary(ctx, err) }()
	return s.sessions.ActiveSessions(ctx, userID, currentSessionID)
}

// Authorize validates a bearer access token and returns its claims. Used by
// the middleware protecting session endpoints.
func (s *Service) Authorize(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.issuer.ValidateAccess(accessToken)
	if err != nil {
		return nil, s.boundary(ctx, err)
	}
	return claims, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, claims *models.IdentityClaims) (*models.User, error) {
	user, err := s.users.FindByProviderSubject(ctx, claims.Provider, claims.Subject)
	if err == nil {
		return s.refreshProfile(ctx, user, claims), nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, gwerrors.Wrap(err, gwerrors.CodeDatabaseError, "look up user")
	}

	now := s.now().UTC()
	user = &models.User{
		ID:         uuid.NewString(),
		Provider:   claims.Provider,
		Subject:    claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		PictureURL: claims.Picture,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent first sign-in; use the winner
			existing, ferr := s.users.FindByProviderSubject(ctx, claims.Provider, claims.Subject)
			if ferr != nil {
				return nil, gwerrors.Wrap(ferr, gwerrors.CodeDatabaseError, "look up user")
			}
			return existing, nil
		}
		return nil, gwerrors.Wrap(err, gwerrors.CodeDatabaseError, "create user")
	}
	return user, nil
}

// refreshProfile copies changed profile fields from the provider claims.
// Failures are logged only; stale profile data must not block sign-in.
func (s *Service) refreshProfile(ctx context.Context, user *models.User, claims *models.IdentityClaims) *models.User {
	changed := false
	if claims.Email != "" && claims.Email != user.Email {
		user.Email = claims.Email
		changed = true
	}
	if claims.Name != "" && claims.Name != user.Name {
		user.Name = claims.Name
		changed = true
	}
	if claims.Picture != "" && claims.Picture != user.PictureURL {
		user.PictureURL = claims.Picture
		changed = true
	}
	if !changed {
		return user
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "profile refresh failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return user
}

func (s *Service) openSession(ctx context.Context, user *models.User, device models.DeviceInfo) (*models.TokenPair, *models.Session, error) {
	sessionID := uuid.NewString()

	refresh, err := s.issuer.IssueRefresh(user.ID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.sessions.Create(ctx, user.ID, sessionID, refresh, device)
	if err != nil {
		return nil, nil, err
	}
	access, err := s.issuer.IssueAccess(user.ID, user.Provider, sess.ID)
	if err != nil {
		return nil, nil, err
	}

	pair := s.tokenPair(access, refresh)
	return &pair, sess, nil
}

func (s *Service) tokenPair(access, refresh string) models.TokenPair {
	return models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(s.issuer.AccessTTL().Seconds()),
		RefreshExpiresIn: int64(s.issuer.RefreshTTL().Seconds()),
		TokenType:        "Bearer",
	}
}

// boundary is the last line of defense: anything that escaped without a
// taxonomy code leaves as an internal error, logged with its cause.
func (s *Service) boundary(ctx context.Context, err error) error {
	if err == nil || gwerrors.IsGatewayError(err) {
		return err
	}
	s.logger.ErrorContext(ctx, "unclassified auth error",
		slog.String("error", err.Error()),
		slog.String("request_id", requestcontext.RequestID(ctx)),
	)
	return gwerrors.Wrap(err, gwerrors.CodeInternal, "internal error")
}

func (s *Service) observeAuth(ctx context.Context, params AuthenticateParams, result *AuthResult, err error, start time.Time) {
	outcome := "success"
	event := audit.SecurityEvent{
		Action:    audit.ActionAuthSucceeded,
		Provider:  string(params.Provider),
		IPAddress: params.Device.IPAddress,
	}
	if err != nil {
		outcome = "failure"
		event.Action = audit.ActionAuthFailed
		event.ErrorCode = string(gwerrors.CodeOf(err))
	} else if result != nil {
		event.UserID = result.User.ID
		event.SessionID = result.SessionID
	}

	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(string(params.Provider), outcome)
		s.metrics.ObserveAuthDuration(string(params.Provider), start)
	}
	s.publish(ctx, event)
}

func (s *Service) observeRefresh(ctx context.Context, result *AuthResult, err error) {
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRefreshAttempt("failure")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordRefreshAttempt("success")
	}
	if result != nil {
		s.publish(ctx, audit.SecurityEvent{
			Action:    audit.ActionTokenRefreshed,
			UserID:    result.User.ID,
			SessionID: result.SessionID,
		})
	}
}

func (s *Service) metricsSessionRevoked() {
	if s.metrics != nil {
		s.metrics.SessionsRevoked.Inc()
	}
}

func (s *Service) publish(ctx context.Context, event audit.SecurityEvent) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = s.now().UTC()
	trace.SpanFromContext(ctx).AddEvent("audit." + string(event.Action))
	if err := s.auditor.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit publish failed",
			slog.String("action", string(event.Action)),
			slog.String("error", err.Error()),
		)
	}
}
