// Package models holds the auth domain's data types: users, sessions, the
// claims extracted from provider identity tokens, and the token pair the
// gateway issues.
package models

import "time"

// Provider identifies an external identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderApple  Provider = "apple"
)

// Valid reports whether p is a known provider tag.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderApple
}

// User is an account linked to an external identity.
type User struct {
	ID         string    `json:"id"`
	Provider   Provider  `json:"provider"`
	Subject    string    `json:"subject"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	PictureURL string    `json:"picture_url,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdentityClaims is the verified payload of a provider identity token.
type IdentityClaims struct {
	Provider      Provider
	Subject       string
	Issuer        string
	Audience      string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Nonce         string
	ExpiresAt     time.Time
	IssuedAt      time.Time
}

// DeviceInfo describes the client device a session was created from.
type DeviceInfo struct {
	DeviceID   string `json:"device_id,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Platform   string `json:"platform,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

// Session is a refresh-token-backed login. RefreshTokenHash stores a bcrypt
// hash; the plaintext refresh token is never persisted.
type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	RefreshTokenHash string     `json:"-"`
	Device           DeviceInfo `json:"device"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       time.Time  `json:"last_used_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	Revoked          bool       `json:"revoked"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session can still redeem its refresh token.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// TokenPair is what a successful authentication or refresh returns.
type TokenPair struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
	TokenType        string `json:"tokenType"`
}

// SessionSummary is the client-facing view of a session.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Device       string    `json:"device"`
	Platform     string    `json:"platform,omitempty"`
	AppVersion   string    `json:"app_version,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsCurrent    bool      `json:"is_current"`
}
