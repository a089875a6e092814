package oauth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/events"
)

// Token is a bearer credential acquired from an identity provider.
type Token struct {
	AccessToken string
	Expiry      time.Time
	Scopes      []string
}

// Issuer is the external identity provider collaborator. The engine never
// runs OAuth flows itself; implementations wrap whatever grant the
// deployment uses.
type Issuer interface {
	IssueToken(ctx context.Context, scopes []string) (Token, error)
}

// DefaultRefreshMargin is how long before expiry a cached token is
// considered due for refresh.
const DefaultRefreshMargin = 30 * time.Second

// TokenManager caches tokens per scope set and refreshes them before they
// expire. It emits TOKEN_ACQUIRED on first issue, TOKEN_REFRESHED on
// re-issue, and TOKEN_REVOKED when a cached token is dropped.
type TokenManager struct {
	issuer Issuer
	bus    *events.Bus
	logger *zap.Logger
	now    func() time.Time
	margin time.Duration

	mu     sync.Mutex
	tokens map[string]Token
}

// NewTokenManager builds a TokenManager over the given issuer collaborator.
func NewTokenManager(issuer Issuer, bus *events.Bus, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		issuer: issuer,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		margin: DefaultRefreshMargin,
		tokens: make(map[string]Token),
	}
}

// Token returns a live token granting scopes, issuing or refreshing through
// the collaborator when the cache has none or the cached one is near
// expiry. Issuance failures are oauth errors, never stale-token reuse.
func (m *TokenManager) Token(ctx context.Context, scopes []string) (Token, error) {
	key := scopeKey(scopes)

	m.mu.Lock()
	defer m.mu.Unlock()

	cached, have := m.tokens[key]
	if have && m.now().Add(m.margin).Before(cached.Expiry) {
		return cached, nil
	}

	tok, err := m.issuer.IssueToken(ctx, scopes)
	if err != nil {
		return Token{}, etdi.WrapError(etdi.KindOAuth, "", err)
	}
	m.tokens[key] = tok

	typ := events.TokenAcquired
	if have {
		typ = events.TokenRefreshed
	}
	m.bus.Publish(events.New(typ, "token_manager", map[string]any{
		"scopes": strings.Join(tok.Scopes, " "),
	}))
	m.logger.Debug("token issued",
		zap.String("scopes", key),
		zap.Time("expiry", tok.Expiry),
		zap.Bool("refresh", have),
	)
	return tok, nil
}

// Revoke drops the cached token for scopes, reporting whether one was
// cached. Emits TOKEN_REVOKED when it was.
func (m *TokenManager) Revoke(scopes []string) bool {
	key := scopeKey(scopes)

	m.mu.Lock()
	_, had := m.tokens[key]
	delete(m.tokens, key)
	m.mu.Unlock()

	if had {
		m.bus.Publish(events.New(events.TokenRevoked, "token_manager", map[string]any{
			"scopes": key,
		}))
	}
	return had
}

// scopeKey canonicalizes a scope set: sorted, deduplicated, space-joined.
func scopeKey(scopes []string) string {
	uniq := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}
