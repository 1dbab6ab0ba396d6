// Package provider describes the external identity providers the gateway
// accepts tokens from. Each provider pins its issuer, its signing-key
// endpoint, and the server-side audience allow-list; clients never influence
// which audiences are accepted.
package provider

import (
	"storygate/internal/auth/models"
	"storygate/internal/platform/config"
	gwerrors "storygate/pkg/gateway-errors"
)

// Provider carries everything needed to verify one provider's identity tokens.
type Provider struct {
	Name      models.Provider
	Issuer    string
	JWKSURL   string
	Audiences []string

	// InvalidTokenCode qualifies verification failures by provider so
	// clients can distinguish a bad Google token from a bad Apple token.
	InvalidTokenCode gwerrors.Code
	// ServiceErrorCode qualifies key-endpoint failures the same way.
	ServiceErrorCode gwerrors.Code
}

// AcceptsAudience reports whether aud is on the provider's allow-list.
func (p *Provider) AcceptsAudience(aud string) bool {
	for _, a := range p.Audiences {
		if a != "" && a == aud {
			return true
		}
	}
	return false
}

// Registry resolves providers by tag.
type Registry struct {
	providers map[models.Provider]*Provider
}

// NewRegistry builds the provider set from configuration. Providers with no
// configured audiences are still registered; verification fails on the
// audience check rather than on an unknown provider.
func NewRegistry(google config.GoogleConfig, apple config.AppleConfig) *Registry {
	r := &Registry{providers: make(map[models.Provider]*Provider)}

	r.providers[models.ProviderGoogle] = &Provider{
		Name:             models.ProviderGoogle,
		Issuer:           "https://accounts.google.com",
		JWKSURL:          "https://www.googleapis.com/oauth2/v3/certs",
		Audiences:        []string{google.ClientID, google.IOSClientID, google.AndroidClientID},
		InvalidTokenCode: gwerrors.CodeInvalidGoogleToken,
		ServiceErrorCode: gwerrors.CodeGoogleServiceError,
	}

	r.providers[models.ProviderApple] = &Provider{
		Name:             models.ProviderApple,
		Issuer:           "https://appleid.apple.com",
		JWKSURL:          "https://appleid.apple.com/auth/keys",
		Audiences:        []string{apple.ClientID, apple.ExpoClientID},
		InvalidTokenCode: gwerrors.CodeInvalidAppleToken,
		ServiceErrorCode: gwerrors.CodeAppleServiceError,
	}

	return r
}

// Lookup returns the provider for tag, or an unknown-provider error.
func (r *Registry) Lookup(tag models.Provider) (*Provider, error) {
	p, ok := r.providers[tag]
	if !ok {
		return nil, gwerrors.Newf(gwerrors.CodeUnknownProvider, "unknown identity provider %q", tag)
	}
	return p, nil
}

// All returns every registered provider. Used to warm key caches at startup.
func (r *Registry) All() []*Provider {
	out := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}
