package handler

import (
	"time"

	"storygate/internal/auth/models"
	"storygate/internal/auth/service"
)

// UserInfo is the client-facing view of an account. No email, no name, no
// picture; those stay out of auth responses.
type UserInfo struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	ProviderID string `json:"providerId"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// TokenInfo is the token portion of an auth response.
type TokenInfo struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresAt    int64    `json:"expiresAt"`
	TokenType    string   `json:"tokenType"`
	Scope        []string `json:"scope"`
}

// AuthResponse is the HTTP response for sign-in and refresh.
type AuthResponse struct {
	Success bool      `json:"success"`
	User    UserInfo  `json:"user"`
	Tokens  TokenInfo `json:"tokens"`
	Message string    `json:"message"`
}

// RevokeResponse is the HTTP response for POST /auth/revoke.
type RevokeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SessionsResponse is the HTTP response for GET /auth/sessions.
type SessionsResponse struct {
	Success  bool                    `json:"success"`
	Sessions []models.SessionSummary `json:"sessions"`
	Count    int                     `json:"count"`
}

// RevokeAllResponse is the HTTP response for POST /auth/revoke-all.
type RevokeAllResponse struct {
	Success         bool   `json:"success"`
	RevokedSessions int    `json:"revokedSessions"`
	Message         string `json:"message"`
}

// FromAuthResult converts a service AuthResult to an HTTP response.
// ExpiresAt is an absolute epoch-milliseconds deadline for the access token.
func FromAuthResult(result *service.AuthResult, message string) *AuthResponse {
	return &AuthResponse{
		Success: true,
		User: UserInfo{
			ID:         result.User.ID,
			Provider:   string(result.User.Provider),
			ProviderID: result.User.Subject,
			CreatedAt:  result.User.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:  result.User.UpdatedAt.UTC().Format(time.RFC3339),
		},
		Tokens: TokenInfo{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
			ExpiresAt:    time.Now().Add(time.Duration(result.Tokens.ExpiresIn) * time.Second).UnixMilli(),
			TokenType:    result.Tokens.TokenType,
			Scope:        []string{"read", "write"},
		},
		Message: message,
	}
}
