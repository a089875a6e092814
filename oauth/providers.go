// Package oauth validates bearer tokens attached to tool definitions. Key
// material is resolved per issuer through pluggable resolvers; named
// identity providers (Auth0, Okta, Azure AD) are thin adapters that produce
// the same issuer/audience/JWKS triple the generic path consumes.
package oauth

import (
	"fmt"
	"strings"
	"sync"
)

// Provider describes one registered identity provider: the issuer its
// tokens claim, the audience they must carry, and where its signing keys
// live.
type Provider struct {
	Name     string
	Issuer   string
	Audience string
	JWKSURL  string
}

// Generic builds a provider from explicit issuer and JWKS endpoint.
func Generic(issuer, jwksURL, audience string) Provider {
	return Provider{Name: "generic", Issuer: issuer, Audience: audience, JWKSURL: jwksURL}
}

// Auth0 builds a provider for an Auth0 tenant domain, eg "acme.auth0.com".
// Auth0 issuers carry a trailing slash.
func Auth0(domain, audience string) Provider {
	base := "https://" + strings.TrimSuffix(strings.TrimPrefix(domain, "https://"), "/")
	return Provider{
		Name:     "auth0",
		Issuer:   base + "/",
		Audience: audience,
		JWKSURL:  base + "/.well-known/jwks.json",
	}
}

// Okta builds a provider for an Okta org domain using its default
// authorization server.
func Okta(domain, audience string) Provider {
	base := "https://" + strings.TrimSuffix(strings.TrimPrefix(domain, "https://"), "/")
	issuer := base + "/oauth2/default"
	return Provider{
		Name:     "okta",
		Issuer:   issuer,
		Audience: audience,
		JWKSURL:  issuer + "/v1/keys",
	}
}

// AzureAD builds a provider for a Microsoft Entra ID tenant.
func AzureAD(tenantID, audience string) Provider {
	base := "https://login.microsoftonline.com/" + tenantID
	return Provider{
		Name:     "azuread",
		Issuer:   base + "/v2.0",
		Audience: audience,
		JWKSURL:  base + "/discovery/v2.0/keys",
	}
}

// ProviderRegistry maps token issuers to their provider configuration and
// key resolver. Lookup is by the exact issuer string a token claims.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]registration
}

type registration struct {
	provider Provider
	resolver KeySetResolver
}

// NewProviderRegistry returns an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]registration)}
}

// Register adds a provider with an explicit key resolver, replacing any
// prior registration for the same issuer.
func (r *ProviderRegistry) Register(p Provider, resolver KeySetResolver) error {
	if p.Issuer == "" {
		return fmt.Errorf("Register: provider %s has no issuer", p.Name)
	}
	if resolver == nil {
		return fmt.Errorf("Register: provider %s (issuer %s) has no key resolver", p.Name, p.Issuer)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Issuer] = registration{provider: p, resolver: resolver}
	return nil
}

// Lookup returns the registration for an issuer.
func (r *ProviderRegistry) Lookup(issuer string) (Provider, KeySetResolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.providers[issuer]
	if !ok {
		return Provider{}, nil, false
	}
	return reg.provider, reg.resolver, true
}

// Issuers returns the registered issuer strings.
func (r *ProviderRegistry) Issuers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for issuer := range r.providers {
		out = append(out, issuer)
	}
	return out
}
