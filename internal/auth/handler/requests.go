package handler

import (
	"strings"

	gwerrors "storygate/pkg/gateway-errors"
)

const maxTokenLength = 8192

// SignInRequest is the HTTP request body for POST /auth/google and
// POST /auth/apple.
type SignInRequest struct {
	IDToken string `json:"idToken"`
	Nonce   string `json:"nonce,omitempty"`
}

// Validate validates the request.
func (r *SignInRequest) Validate() error {
	r.IDToken = strings.TrimSpace(r.IDToken)
	if r.IDToken == "" {
		return gwerrors.New(gwerrors.CodeMissingRequiredField, "idToken is required").
			WithDetails(map[string]string{"idToken": "required"})
	}
	if len(r.IDToken) > maxTokenLength {
		return gwerrors.New(gwerrors.CodeInvalidParameter, "idToken is too long")
	}
	return nil
}

// RefreshRequest is the HTTP request body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Validate validates the request.
func (r *RefreshRequest) Validate() error {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	if r.RefreshToken == "" {
		return gwerrors.New(gwerrors.CodeMissingRequiredField, "refreshToken is required").
			WithDetails(map[string]string{"refreshToken": "required"})
	}
	if len(r.RefreshToken) > maxTokenLength {
		return gwerrors.New(gwerrors.CodeInvalidParameter, "refreshToken is too long")
	}
	return nil
}

// RevokeRequest is the HTTP request body for POST /auth/revoke.
type RevokeRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Validate validates the request.
func (r *RevokeRequest) Validate() error {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	if r.RefreshToken == "" {
		return gwerrors.New(gwerrors.CodeMissingRequiredField, "refreshToken is required").
			WithDetails(map[string]string{"refreshToken": "required"})
	}
	return nil
}
