package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySetResolver resolves the JWK set used to verify tokens from one
// issuer. Resolution is the validator's only suspension point: remote
// resolvers may block on HTTP, static ones never do.
type KeySetResolver interface {
	ResolveKeySet(ctx context.Context, issuer string) (jwk.Set, error)
}

// StaticResolver serves a fixed key set. Intended for pinned provider keys
// and for tests.
type StaticResolver struct {
	set jwk.Set
}

// NewStaticResolver wraps an existing jwk.Set.
func NewStaticResolver(set jwk.Set) *StaticResolver {
	return &StaticResolver{set: set}
}

// StaticResolverFromRaw builds a resolver from raw public keys
// (*rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey).
func StaticResolverFromRaw(keys ...any) (*StaticResolver, error) {
	set := jwk.NewSet()
	for i, raw := range keys {
		key, err := jwk.FromRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("StaticResolverFromRaw: key %d: %w", i, err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("StaticResolverFromRaw: key %d: %w", i, err)
		}
	}
	return &StaticResolver{set: set}, nil
}

func (r *StaticResolver) ResolveKeySet(context.Context, string) (jwk.Set, error) {
	return r.set, nil
}

const minJWKSRefresh = 15 * time.Minute

// RemoteResolver fetches and caches a JWKS endpoint. The underlying cache
// refreshes in the background honoring HTTP cache headers, so steady-state
// resolution does not hit the network.
type RemoteResolver struct {
	cache *jwk.Cache
	url   string
}

// NewRemoteResolver registers jwksURL on a cache bound to ctx; cancelling
// ctx stops the background refresher.
func NewRemoteResolver(ctx context.Context, jwksURL string) (*RemoteResolver, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(minJWKSRefresh)); err != nil {
		return nil, fmt.Errorf("NewRemoteResolver: register %s: %w", jwksURL, err)
	}
	return &RemoteResolver{cache: cache, url: jwksURL}, nil
}

func (r *RemoteResolver) ResolveKeySet(ctx context.Context, issuer string) (jwk.Set, error) {
	set, err := r.cache.Get(ctx, r.url)
	if err != nil {
		return nil, fmt.Errorf("ResolveKeySet: issuer %s: fetch %s: %w", issuer, r.url, err)
	}
	return set, nil
}
