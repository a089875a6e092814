package server

import (
	"github.com/vineethsai/etdi-go/pipeline"
	"github.com/vineethsai/etdi-go/signature"
	"github.com/vineethsai/etdi-go/tooldef"
)

// --- POST /v1/etdi/verify ---

// VerifyReq is the JSON body for POST /v1/etdi/verify.
type VerifyReq struct {
	Tool *tooldef.ToolDefinition `json:"tool"`
}

// StagesResp reports each verification stage as passed, failed, or
// skipped.
type StagesResp struct {
	Schema    string `json:"schema"`
	Signature string `json:"signature"`
	Token     string `json:"token"`
}

// ChangesResp reports drift against the standing approval.
type ChangesResp struct {
	FirstUse           bool     `json:"first_use"`
	VersionChanged     bool     `json:"version_changed"`
	PermissionsChanged bool     `json:"permissions_changed"`
	ProviderChanged    bool     `json:"provider_changed"`
	ContentChanged     bool     `json:"content_changed"`
	AddedScopes        []string `json:"added_scopes,omitempty"`
	RemovedScopes      []string `json:"removed_scopes,omitempty"`
	RequiresReapproval bool     `json:"requires_reapproval"`
}

// ErrorDetail is one classified stage failure.
type ErrorDetail struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// VerifyResp is the response for POST /v1/etdi/verify. Visible reports
// whether a tool listing should show this tool to users under the
// server's configuration.
type VerifyResp struct {
	ToolID  string        `json:"tool_id"`
	Verdict string        `json:"verdict"`
	Reason  string        `json:"reason,omitempty"`
	Visible bool          `json:"visible"`
	Stages  StagesResp    `json:"stages"`
	Changes *ChangesResp  `json:"changes,omitempty"`
	Errors  []ErrorDetail `json:"errors,omitempty"`
}

// --- Approvals ---

// ApproveReq is the JSON body for POST /v1/etdi/approvals.
type ApproveReq struct {
	Tool *tooldef.ToolDefinition `json:"tool"`
}

// --- Call stacks ---

// CreateStackResp returns the id of a new call stack session.
type CreateStackResp struct {
	StackID string `json:"stack_id"`
}

// EnterReq is the JSON body for POST /v1/etdi/stacks/{stack_id}/enter.
// SignedRequest and SignerID are consulted only when the configuration
// mandates request signing; SignerID names the trust anchor holding the
// client's verification key.
type EnterReq struct {
	Tool          *tooldef.ToolDefinition  `json:"tool"`
	SignedRequest *signature.SignedRequest `json:"signed_request,omitempty"`
	SignerID      string                   `json:"signer_id,omitempty"`
}

// EnterResp is the outcome of an enter attempt.
type EnterResp struct {
	Allowed bool   `json:"allowed"`
	Handle  string `json:"handle,omitempty"`
	Depth   int    `json:"depth,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Pending bool   `json:"pending,omitempty"`
}

// ExitReq is the JSON body for POST /v1/etdi/stacks/{stack_id}/exit.
type ExitReq struct {
	Handle string `json:"handle"`
}

// ExitResp reports the stack depth after a successful exit.
type ExitResp struct {
	Depth int `json:"depth"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

func stageStatus(sr *pipeline.StageResult) string {
	switch {
	case sr == nil:
		return "skipped"
	case sr.OK:
		return "passed"
	default:
		return "failed"
	}
}
