package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/tooldef"
)

const source = "oauth_validator"

// DefaultSkew is the clock skew tolerated when validating token timestamps.
const DefaultSkew = time.Minute

// Claims is the subset of validated token claims the engine acts on.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Scopes   []string
	Expiry   time.Time
}

// Result is the outcome of validating one token. When Valid is false, Err
// carries a classified error: token_validation for malformed/expired/
// wrong-audience tokens, permission for scope shortfalls, oauth for key
// resolution failures at the collaborator boundary.
type Result struct {
	Valid  bool
	Claims *Claims
	Err    error
}

// Validator checks bearer tokens already in hand: signature via the
// issuer's resolved key set, expiry, issuer registration, audience, and
// that the expected scopes are all granted. It never acquires or refreshes
// tokens itself.
type Validator struct {
	providers *ProviderRegistry
	bus       *events.Bus
	logger    *zap.Logger
	clock     func() time.Time
	skew      time.Duration
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock substitutes the time source used for expiry checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.clock = now }
}

// WithAcceptableSkew widens the tolerance for iat/exp comparisons.
func WithAcceptableSkew(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d >= 0 {
			v.skew = d
		}
	}
}

// NewValidator builds a Validator over the given provider registry.
func NewValidator(providers *ProviderRegistry, bus *events.Bus, logger *zap.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		providers: providers,
		bus:       bus,
		logger:    logger,
		clock:     time.Now,
		skew:      DefaultSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks token and that expectedScopes is a subset of the granted
// scopes. Emits TOKEN_VALIDATED on success and TOKEN_EXPIRED on expiry;
// other failures surface only through the Result.
func (v *Validator) Validate(ctx context.Context, token string, expectedScopes []string) Result {
	if strings.TrimSpace(token) == "" {
		return v.fail(etdi.NewError(etdi.KindTokenValidation, "", "empty token"))
	}

	// The issuer claim decides which key set verifies the token, so it is
	// read before any cryptographic check.
	unverified, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return v.fail(etdi.NewError(etdi.KindTokenValidation, "", "malformed token: %v", err))
	}
	issuer := unverified.Issuer()
	if issuer == "" {
		return v.fail(etdi.NewError(etdi.KindTokenValidation, "", "token carries no issuer"))
	}

	provider, resolver, ok := v.providers.Lookup(issuer)
	if !ok {
		return v.fail(etdi.NewError(etdi.KindTokenValidation, "", "issuer %q not registered", issuer))
	}

	set, err := resolver.ResolveKeySet(ctx, issuer)
	if err != nil {
		return v.fail(etdi.WrapError(etdi.KindOAuth, "", err))
	}

	parseOpts := []jwt.ParseOption{
		jwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true), jws.WithUseDefault(true)),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithClock(jwt.ClockFunc(v.clock)),
		jwt.WithAcceptableSkew(v.skew),
	}
	if provider.Audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(provider.Audience))
	}

	tok, err := jwt.Parse([]byte(token), parseOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			v.bus.Publish(events.New(events.TokenExpired, source, map[string]any{
				"issuer": issuer,
			}))
			return Result{Valid: false, Err: etdi.NewError(etdi.KindTokenValidation, "", "token expired")}
		}
		return v.fail(etdi.NewError(etdi.KindTokenValidation, "", "token rejected: %v", err))
	}

	granted := scopesFromToken(tok)
	if missing := tooldef.ScopesSatisfied(expectedScopes, granted); len(missing) > 0 {
		return v.fail(etdi.NewError(etdi.KindPermission, "",
			"token missing required scopes: %s", strings.Join(missing, " ")))
	}

	claims := &Claims{
		Subject:  tok.Subject(),
		Issuer:   issuer,
		Audience: tok.Audience(),
		Scopes:   granted,
		Expiry:   tok.Expiration(),
	}
	v.bus.Publish(events.New(events.TokenValidated, source, map[string]any{
		"issuer":  issuer,
		"subject": claims.Subject,
	}))
	return Result{Valid: true, Claims: claims}
}

// ValidateFor validates the bearer token attached to a definition's OAuth
// descriptor against the definition's required scopes. The token's issuer
// is pinned to the one the descriptor declares before any cryptographic
// check, so a token from a different (even registered) issuer never
// produces a TOKEN_VALIDATED event for this definition.
func (v *Validator) ValidateFor(ctx context.Context, def *tooldef.ToolDefinition) Result {
	if !def.HasOAuth() {
		return Result{Valid: false, Err: etdi.NewError(etdi.KindTokenValidation, def.ID, "definition declares no oauth security")}
	}
	oauth := def.Security.OAuth
	if oauth.Token == "" {
		return Result{Valid: false, Err: etdi.NewError(etdi.KindTokenValidation, def.ID, "definition carries no bearer token")}
	}

	unverified, err := jwt.ParseInsecure([]byte(oauth.Token))
	if err != nil {
		return Result{Valid: false, Err: etdi.NewError(etdi.KindTokenValidation, def.ID, "malformed token: %v", err)}
	}
	if iss := unverified.Issuer(); iss != oauth.Issuer {
		return Result{Valid: false, Err: etdi.NewError(etdi.KindTokenValidation, def.ID,
			"token issued by %q, definition declares %q", iss, oauth.Issuer)}
	}

	res := v.Validate(ctx, oauth.Token, def.RequiredScopes())
	if !res.Valid {
		var classified *etdi.Error
		if errors.As(res.Err, &classified) && classified.ToolID == "" {
			classified.ToolID = def.ID
		}
	}
	return res
}

func (v *Validator) fail(err *etdi.Error) Result {
	v.logger.Debug("token validation failed", zap.String("reason", err.Reason))
	return Result{Valid: false, Err: err}
}

// scopesFromToken merges the two scope claim conventions: "scope" as a
// space-joined string and "scp" as an array. Order is preserved,
// duplicates dropped.
func scopesFromToken(tok jwt.Token) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if raw, ok := tok.Get("scope"); ok {
		if joined, ok := raw.(string); ok {
			for _, s := range strings.Fields(joined) {
				add(s)
			}
		}
	}
	if raw, ok := tok.Get("scp"); ok {
		switch vals := raw.(type) {
		case []any:
			for _, v := range vals {
				if s, ok := v.(string); ok {
					add(s)
				}
			}
		case []string:
			for _, s := range vals {
				add(s)
			}
		case string:
			for _, s := range strings.Fields(vals) {
				add(s)
			}
		}
	}
	return out
}
