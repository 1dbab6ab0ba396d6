// Package token issues and validates the gateway's own HS256 tokens. Access
// and refresh tokens share the signing key but carry a type claim so one can
// never be redeemed as the other.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storygate/internal/auth/models"
	gwerrors "storygate/pkg/gateway-errors"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims represents the JWT claims for gateway-issued tokens.
type Claims struct {
	TokenType string `json:"type"`
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// Issuer creates and validates gateway tokens.
type Issuer struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer builds an Issuer from signing settings.
func NewIssuer(signingKey, issuer string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess mints an access token for userID. The provider tag rides along
// so downstream services know which identity provider vouched for the user.
func (i *Issuer) IssueAccess(userID string, provider models.Provider, sessionID string) (string, error) {
	return i.sign(Claims{
		TokenType:        TypeAccess,
		Provider:         string(provider),
		SessionID:        sessionID,
		RegisteredClaims: i.registered(userID, i.accessTTL),
	})
}

// IssueRefresh mints a refresh token for userID bound to sessionID.
func (i *Issuer) IssueRefresh(userID, sessionID string) (string, error) {
	return i.sign(Claims{
		TokenType:        TypeRefresh,
		SessionID:        sessionID,
		RegisteredClaims: i.registered(userID, i.refreshTTL),
	})
}

func (i *Issuer) registered(userID string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    i.issuer,
		ID:        uuid.NewString(),
	}
}

func (i *Issuer) sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", gwerrors.Wrap(err, gwerrors.CodeInternal, "sign token")
	}
	return signed, nil
}

// ValidateAccess parses tokenString and enforces that it is a live access
// token issued by this gateway.
func (i *Issuer) ValidateAccess(tokenString string) (*Claims, error) {
	return i.validate(tokenString, TypeAccess, gwerrors.CodeInvalidToken)
}

// ValidateRefresh parses tokenString and enforces that it is a live refresh
// token issued by this gateway.
func (i *Issuer) ValidateRefresh(tokenString string) (*Claims, error) {
	return i.validate(tokenString, TypeRefresh, gwerrors.CodeInvalidRefreshToken)
}

func (i *Issuer) validate(tokenString, wantType string, badCode gwerrors.Code) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.signingKey, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			if wantType == TypeRefresh {
				return nil, gwerrors.Wrap(err, gwerrors.CodeSessionExpired, "refresh token has expired")
			}
			return nil, gwerrors.Wrap(err, gwerrors.CodeTokenExpired, "token has expired")
		}
		return nil, gwerrors.Wrap(err, badCode, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, gwerrors.New(badCode, "invalid token claims")
	}
	if claims.TokenType != wantType {
		return nil, gwerrors.Newf(gwerrors.CodeInvalidTokenType, "token type %q cannot be used as %s", claims.TokenType, wantType)
	}
	if claims.Subject == "" {
		return nil, gwerrors.New(badCode, "token has no subject")
	}
	return claims, nil
}
