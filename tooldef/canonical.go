package tooldef

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SigningPayload returns the canonical encoding a provider signs: a JSON
// document with lexicographically sorted keys covering every field of the
// definition except the signature bytes and the rotating OAuth bearer token.
// The OAuth descriptor and algorithm identifier are covered, so swapping
// either after signing breaks verification, while token refresh does not.
func SigningPayload(d *ToolDefinition) ([]byte, error) {
	payload, err := json.Marshal(canonicalMap(d, true))
	if err != nil {
		return nil, fmt.Errorf("SigningPayload: %w", err)
	}
	return payload, nil
}

// ContentHash returns the hex SHA-256 of the user-consented content: every
// field except the SecurityInfo block. Re-signing identical content does not
// change the hash; a same-version republish with different permissions does.
func ContentHash(d *ToolDefinition) (string, error) {
	payload, err := json.Marshal(canonicalMap(d, false))
	if err != nil {
		return "", fmt.Errorf("ContentHash: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalMap flattens a definition into nested maps so json.Marshal
// produces sorted keys at every level. Zero-valued optional fields are
// omitted rather than encoded as null. VerificationStatus is never
// included: it is engine state, not definition content.
func canonicalMap(d *ToolDefinition, includeSecurity bool) map[string]any {
	m := map[string]any{
		"id":      d.ID,
		"name":    d.Name,
		"version": d.Version,
	}
	if d.Description != "" {
		m["description"] = d.Description
	}

	provider := map[string]any{"id": d.Provider.ID}
	if d.Provider.Name != "" {
		provider["name"] = d.Provider.Name
	}
	m["provider"] = provider

	if d.Schema != nil {
		m["schema"] = d.Schema
	}

	if len(d.Permissions) > 0 {
		perms := make([]any, len(d.Permissions))
		for i, p := range d.Permissions {
			pm := map[string]any{
				"name":     p.Name,
				"scope":    p.Scope,
				"required": p.Required,
			}
			if p.Description != "" {
				pm["description"] = p.Description
			}
			perms[i] = pm
		}
		m["permissions"] = perms
	}

	if d.Constraints != nil {
		c := map[string]any{}
		if d.Constraints.MaxDepth > 0 {
			c["max_depth"] = d.Constraints.MaxDepth
		}
		if len(d.Constraints.AllowedCallers) > 0 {
			c["allowed_callers"] = d.Constraints.AllowedCallers
		}
		if len(d.Constraints.BlockedCallers) > 0 {
			c["blocked_callers"] = d.Constraints.BlockedCallers
		}
		if len(d.Constraints.AllowedCallees) > 0 {
			c["allowed_callees"] = d.Constraints.AllowedCallees
		}
		if len(d.Constraints.BlockedCallees) > 0 {
			c["blocked_callees"] = d.Constraints.BlockedCallees
		}
		if d.Constraints.RequireChainApproval {
			c["require_chain_approval"] = true
		}
		m["constraints"] = c
	}

	if d.RequireRequestSigning {
		m["require_request_signing"] = true
	}

	if includeSecurity && d.Security != nil {
		sec := map[string]any{}
		if d.Security.OAuth != nil {
			oauth := map[string]any{"issuer": d.Security.OAuth.Issuer}
			if d.Security.OAuth.Audience != "" {
				oauth["audience"] = d.Security.OAuth.Audience
			}
			if d.Security.OAuth.JWKSURI != "" {
				oauth["jwks_uri"] = d.Security.OAuth.JWKSURI
			}
			sec["oauth"] = oauth
		}
		if d.Security.Algorithm != "" {
			sec["algorithm"] = d.Security.Algorithm
		}
		if len(sec) > 0 {
			m["security"] = sec
		}
	}

	return m
}
