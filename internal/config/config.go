// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vineethsai/etdi-go/approval"
	"github.com/vineethsai/etdi-go/oauth"
	"github.com/vineethsai/etdi-go/pipeline"
)

const (
	defaultListenAddr   = ":8080"
	defaultAuthCacheTTL = 30 * time.Second
	defaultSessionTTL   = 10 * time.Minute
)

// APIKey is one configured service key: the plaintext prefix used for
// lookup and the bcrypt hash the full key must match.
type APIKey struct {
	Prefix string
	Hash   string
}

// Config holds server configuration values. DSN and URL fields are
// optional: an empty PostgresDSN selects the in-memory approval store, an
// empty ClickHouseDSN selects the log sink, an empty NATSURL disables the
// NATS bridge.
type Config struct {
	ListenAddr string
	LogLevel   string

	SecurityLevel        pipeline.SecurityLevel
	AllowNonETDITools    bool
	ShowUnverifiedTools  bool
	EnableRequestSigning bool
	RequestFreshness     time.Duration

	PostgresDSN   string
	ClickHouseDSN string
	NATSURL       string

	TrustAnchorsPath string
	APIKeys          []APIKey

	OAuthProviders []oauth.Provider

	AuthCacheTTL     time.Duration
	ApprovalCacheTTL time.Duration
	SessionTTL       time.Duration
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	level, err := pipeline.ParseSecurityLevel(envOrDefault("ETDI_SECURITY_LEVEL", "enhanced"))
	if err != nil {
		return Config{}, fmt.Errorf("ETDI_SECURITY_LEVEL: %w", err)
	}

	keys, err := parseAPIKeys(os.Getenv("ETDI_API_KEYS"))
	if err != nil {
		return Config{}, fmt.Errorf("ETDI_API_KEYS: %w", err)
	}

	providers, err := parseOAuthProviders()
	if err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddr:           envOrDefault("ETDI_LISTEN_ADDR", defaultListenAddr),
		LogLevel:             strings.ToLower(envOrDefault("ETDI_LOG_LEVEL", "info")),
		SecurityLevel:        level,
		AllowNonETDITools:    envBool("ETDI_ALLOW_NON_ETDI_TOOLS", false),
		ShowUnverifiedTools:  envBool("ETDI_SHOW_UNVERIFIED_TOOLS", false),
		EnableRequestSigning: envBool("ETDI_ENABLE_REQUEST_SIGNING", false),
		RequestFreshness:     envPositiveDuration("ETDI_REQUEST_FRESHNESS", 0),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN:        os.Getenv("CLICKHOUSE_DSN"),
		NATSURL:              os.Getenv("ETDI_NATS_URL"),
		TrustAnchorsPath:     os.Getenv("ETDI_TRUST_ANCHORS"),
		APIKeys:              keys,
		OAuthProviders:       providers,
		AuthCacheTTL:         envPositiveDuration("ETDI_AUTH_CACHE_TTL", defaultAuthCacheTTL),
		ApprovalCacheTTL:     envPositiveDuration("ETDI_APPROVAL_CACHE_TTL", approval.DefaultCacheTTL),
		SessionTTL:           envPositiveDuration("ETDI_SESSION_TTL", defaultSessionTTL),
	}, nil
}

// Pipeline returns the verification pipeline configuration this server
// configuration selects.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		SecurityLevel:        c.SecurityLevel,
		AllowNonETDITools:    c.AllowNonETDITools,
		ShowUnverifiedTools:  c.ShowUnverifiedTools,
		EnableRequestSigning: c.EnableRequestSigning,
		RequestFreshness:     c.RequestFreshness,
	}
}

// parseOAuthProviders reads the identity provider blocks. Each block is
// optional and independently enables one provider for token validation.
func parseOAuthProviders() ([]oauth.Provider, error) {
	var providers []oauth.Provider
	if issuer := os.Getenv("ETDI_OAUTH_ISSUER"); issuer != "" {
		jwksURL := os.Getenv("ETDI_OAUTH_JWKS_URL")
		if jwksURL == "" {
			return nil, fmt.Errorf("ETDI_OAUTH_ISSUER is set but ETDI_OAUTH_JWKS_URL is empty")
		}
		providers = append(providers, oauth.Generic(issuer, jwksURL, os.Getenv("ETDI_OAUTH_AUDIENCE")))
	}
	if domain := os.Getenv("ETDI_AUTH0_DOMAIN"); domain != "" {
		providers = append(providers, oauth.Auth0(domain, os.Getenv("ETDI_AUTH0_AUDIENCE")))
	}
	if domain := os.Getenv("ETDI_OKTA_DOMAIN"); domain != "" {
		providers = append(providers, oauth.Okta(domain, os.Getenv("ETDI_OKTA_AUDIENCE")))
	}
	if tenant := os.Getenv("ETDI_AZUREAD_TENANT"); tenant != "" {
		providers = append(providers, oauth.AzureAD(tenant, os.Getenv("ETDI_AZUREAD_AUDIENCE")))
	}
	return providers, nil
}

// parseAPIKeys reads "prefix:bcrypt-hash" entries separated by commas.
// bcrypt hashes never contain ':' or ',', so the format is unambiguous.
func parseAPIKeys(raw string) ([]APIKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	entries := strings.Split(raw, ",")
	keys := make([]APIKey, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, hash, ok := strings.Cut(entry, ":")
		if !ok || prefix == "" || hash == "" {
			return nil, fmt.Errorf("malformed entry %q, want prefix:hash", entry)
		}
		if !strings.HasPrefix(prefix, "etk_") {
			return nil, fmt.Errorf("key prefix %q must start with etk_", prefix)
		}
		keys = append(keys, APIKey{Prefix: prefix, Hash: hash})
	}
	return keys, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}
