// Package tooldef defines the immutable tool definition model the ETDI
// engine verifies: a tool's identity, version, permissions, security
// metadata, and call chaining constraints. Definitions are value objects;
// any change produces a new definition, and nothing in this package mutates
// one after construction.
package tooldef

// Provider identifies the publisher of a tool definition. The id is the
// stable identity the trust store and drift detector compare; the name is
// presentation only.
type Provider struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Permission is a single capability a tool requires. Scope strings are
// opaque to the engine but comparable: permission drift is computed as a
// set difference by scope.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Scope       string `json:"scope"`
	Required    bool   `json:"required"`
}

// OAuthInfo declares which identity provider issues tokens for a tool and
// the audience those tokens must carry. Token holds the provider's current
// bearer token for the tool; it is a rotating credential, so the signing
// payload covers the descriptor but never the token itself.
type OAuthInfo struct {
	Issuer   string `json:"issuer"`
	Audience string `json:"audience,omitempty"`
	JWKSURI  string `json:"jwks_uri,omitempty"`
	Token    string `json:"token,omitempty"`
}

// SecurityInfo is the cryptographic metadata attached to a definition.
// The signature, if present, was computed over the canonical signing
// payload (see SigningPayload), which covers every field of the definition
// except the signature bytes themselves.
type SecurityInfo struct {
	OAuth     *OAuthInfo `json:"oauth,omitempty"`
	Signature []byte     `json:"signature,omitempty"`
	Algorithm string     `json:"algorithm,omitempty"`
}

// CallConstraints is the declarative chaining policy attached to a
// definition. Caller and callee sets hold tool ids; blocked lists take
// precedence over allowed lists when both match the same pair. A zero
// MaxDepth means unlimited.
type CallConstraints struct {
	MaxDepth             int      `json:"max_depth,omitempty"`
	AllowedCallers       []string `json:"allowed_callers,omitempty"`
	BlockedCallers       []string `json:"blocked_callers,omitempty"`
	AllowedCallees       []string `json:"allowed_callees,omitempty"`
	BlockedCallees       []string `json:"blocked_callees,omitempty"`
	RequireChainApproval bool     `json:"require_chain_approval,omitempty"`
}

// VerificationStatus is the engine's last word on a definition. It is
// observer state, not definition content: both canonical encodings
// exclude it.
type VerificationStatus int

const (
	StatusUnverified VerificationStatus = iota
	StatusVerified
	StatusRequiresApproval
	StatusRejected
)

// String returns the lowercase status name.
func (s VerificationStatus) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusRequiresApproval:
		return "requires_approval"
	case StatusRejected:
		return "rejected"
	default:
		return "unverified"
	}
}

// ToolDefinition describes a callable tool at a specific version. The id is
// stable across versions; (id, version) is unique. Schema holds the tool's
// input schema as a decoded JSON Schema document.
type ToolDefinition struct {
	ID                    string             `json:"id"`
	Name                  string             `json:"name"`
	Version               string             `json:"version"`
	Description           string             `json:"description,omitempty"`
	Provider              Provider           `json:"provider"`
	Schema                map[string]any     `json:"schema,omitempty"`
	Permissions           []Permission       `json:"permissions,omitempty"`
	Security              *SecurityInfo      `json:"security,omitempty"`
	Constraints           *CallConstraints   `json:"constraints,omitempty"`
	RequireRequestSigning bool               `json:"require_request_signing,omitempty"`
	Status                VerificationStatus `json:"status,omitempty"`
}

// IsSigned reports whether the definition carries a detached signature.
func (d *ToolDefinition) IsSigned() bool {
	return d.Security != nil && len(d.Security.Signature) > 0
}

// HasOAuth reports whether the definition declares an identity provider.
func (d *ToolDefinition) HasOAuth() bool {
	return d.Security != nil && d.Security.OAuth != nil && d.Security.OAuth.Issuer != ""
}

// Scopes returns every permission scope in declared order, deduplicated.
func (d *ToolDefinition) Scopes() []string {
	return scopesOf(d.Permissions, false)
}

// RequiredScopes returns the scopes of permissions marked required, in
// declared order, deduplicated. These are the scopes a tool's OAuth token
// must grant.
func (d *ToolDefinition) RequiredScopes() []string {
	return scopesOf(d.Permissions, true)
}

func scopesOf(perms []Permission, requiredOnly bool) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if requiredOnly && !p.Required {
			continue
		}
		if p.Scope == "" {
			continue
		}
		if _, dup := seen[p.Scope]; dup {
			continue
		}
		seen[p.Scope] = struct{}{}
		out = append(out, p.Scope)
	}
	return out
}

// Clone returns a deep copy. Callers that need to derive a changed
// definition copy first; the original is never mutated.
func (d *ToolDefinition) Clone() *ToolDefinition {
	if d == nil {
		return nil
	}
	out := *d
	out.Permissions = append([]Permission(nil), d.Permissions...)
	if d.Schema != nil {
		out.Schema = cloneJSONMap(d.Schema)
	}
	if d.Security != nil {
		sec := *d.Security
		if d.Security.OAuth != nil {
			oauth := *d.Security.OAuth
			sec.OAuth = &oauth
		}
		sec.Signature = append([]byte(nil), d.Security.Signature...)
		out.Security = &sec
	}
	if d.Constraints != nil {
		c := *d.Constraints
		c.AllowedCallers = append([]string(nil), d.Constraints.AllowedCallers...)
		c.BlockedCallers = append([]string(nil), d.Constraints.BlockedCallers...)
		c.AllowedCallees = append([]string(nil), d.Constraints.AllowedCallees...)
		c.BlockedCallees = append([]string(nil), d.Constraints.BlockedCallees...)
		out.Constraints = &c
	}
	return &out
}

func cloneJSONMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneJSONMap(vv)
		case []any:
			out[k] = cloneJSONSlice(vv)
		default:
			out[k] = v
		}
	}
	return out
}

func cloneJSONSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		switch vv := v.(type) {
		case map[string]any:
			out[i] = cloneJSONMap(vv)
		case []any:
			out[i] = cloneJSONSlice(vv)
		default:
			out[i] = v
		}
	}
	return out
}
