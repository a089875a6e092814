// Package pipeline orchestrates the verification chain: schema compile,
// signature verification, drift detection against the standing approval,
// and token validation, under a configured security level. It owns the
// verdict; the stage packages own their checks. VerifyTool and
// AuthorizeCall never write the approval store. Recording an approval is
// the explicit Approve operation, driven by a user decision upstream.
package pipeline

import (
	"context"
	"crypto"
	"errors"
	"time"

	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/approval"
	"github.com/vineethsai/etdi-go/callstack"
	"github.com/vineethsai/etdi-go/drift"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/metrics"
	"github.com/vineethsai/etdi-go/oauth"
	"github.com/vineethsai/etdi-go/signature"
	"github.com/vineethsai/etdi-go/tooldef"
)

const source = "verification_pipeline"

// Deps are the pipeline's collaborators. All are required except Metrics.
type Deps struct {
	Signature *signature.Verifier
	OAuth     *oauth.Validator
	Drift     *drift.Detector
	Approvals approval.Store
	Calls     *callstack.Verifier
	Bus       *events.Bus
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Pipeline runs verification passes and call authorizations.
type Pipeline struct {
	cfg     Config
	sig     *signature.Verifier
	oauth   *oauth.Validator
	drift   *drift.Detector
	store   approval.Store
	calls   *callstack.Verifier
	bus     *events.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a Pipeline with cfg and deps.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Signature == nil:
		return nil, errors.New("pipeline: signature verifier is required")
	case deps.OAuth == nil:
		return nil, errors.New("pipeline: oauth validator is required")
	case deps.Drift == nil:
		return nil, errors.New("pipeline: change detector is required")
	case deps.Approvals == nil:
		return nil, errors.New("pipeline: approval store is required")
	case deps.Calls == nil:
		return nil, errors.New("pipeline: call stack verifier is required")
	case deps.Bus == nil:
		return nil, errors.New("pipeline: event bus is required")
	case deps.Logger == nil:
		return nil, errors.New("pipeline: logger is required")
	}
	return &Pipeline{
		cfg:     cfg,
		sig:     deps.Signature,
		oauth:   deps.OAuth,
		drift:   deps.Drift,
		store:   deps.Approvals,
		calls:   deps.Calls,
		bus:     deps.Bus,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		now:     time.Now,
	}, nil
}

// Config returns the pipeline's configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// WithMode returns a Pipeline sharing p's collaborators but running in
// the given report mode. The receiver is unchanged.
func (p *Pipeline) WithMode(mode ReportMode) *Pipeline {
	clone := *p
	clone.cfg.Mode = mode
	return &clone
}

// VerifyTool runs the verification chain over def and returns a Report.
// Classified failures become verdicts, never errors; the error return is
// reserved for infrastructure faults (approval store unreachable), which
// must not read as approval or denial. The pass is idempotent: it reads
// the approval store and emits events, nothing else.
func (p *Pipeline) VerifyTool(ctx context.Context, def *tooldef.ToolDefinition) (*Report, error) {
	started := p.now()
	rep := &Report{ToolID: def.ID, Verdict: VerdictVerified}
	full := p.cfg.Mode == FullReport

	if def.Schema != nil {
		if err := tooldef.CompileSchema(def); err != nil {
			cerr := classify(err, etdi.KindSchema, def.ID)
			rep.Schema = &StageResult{Err: cerr}
			rep.addError(cerr)
			rep.reject("input schema does not compile")
			if !full {
				return p.finish(rep, started), nil
			}
		} else {
			rep.Schema = &StageResult{OK: true}
		}
	}

	if !def.IsSigned() && p.cfg.toleratesUnsigned() {
		// Unsigned legacy tool: the stage is skipped, and the verdict can
		// never reach Verified without a signature.
		rep.downgrade(VerdictUnverified, "definition is not signed")
	} else {
		res := p.sig.Verify(ctx, def)
		if !res.Valid {
			cerr := classify(res.Err, etdi.KindSignature, def.ID)
			rep.Signature = &StageResult{Err: cerr}
			rep.addError(cerr)
			rep.reject("signature verification failed")
			if !full {
				return p.finish(rep, started), nil
			}
		} else {
			rep.Signature = &StageResult{OK: true}
		}
	}

	dres, err := p.drift.Detect(ctx, def)
	if err != nil {
		if etdi.IsStoreFault(err) {
			return nil, err
		}
		cerr := classify(err, etdi.KindSchema, def.ID)
		rep.addError(cerr)
		rep.reject("definition cannot be compared against its approval")
		if !full {
			return p.finish(rep, started), nil
		}
	} else {
		rep.Changes = dres
		p.applyDrift(rep, dres)
		if rep.Verdict == VerdictRejected && !full {
			return p.finish(rep, started), nil
		}
	}

	p.validateToken(ctx, rep, def)
	return p.finish(rep, started), nil
}

// applyDrift folds a drift result into the report and emits the
// pipeline-level events derived from it.
func (p *Pipeline) applyDrift(rep *Report, dres *drift.Result) {
	if dres.FirstUse {
		if p.cfg.SecurityLevel == LevelStrict {
			rep.reject("no standing approval")
			return
		}
		rep.downgrade(VerdictRequiresApproval, "no standing approval")
		return
	}

	if dres.HasChanges || dres.HashChanged {
		p.bus.Publish(events.New(events.ToolUpdated, source, map[string]any{
			"tool_id":             rep.ToolID,
			"version_changed":     dres.VersionChanged,
			"permissions_changed": dres.PermissionsChanged,
			"provider_changed":    dres.ProviderChanged,
			"content_changed":     dres.HashChanged,
		}))
	}
	if len(dres.NewPermissions) > 0 {
		// An approved tool that gained scopes is the rug-pull shape.
		p.bus.Publish(events.NewThreat(events.PrivilegeEscalationDetected, source, "privilege_escalation", map[string]any{
			"tool_id":      rep.ToolID,
			"added_scopes": scopeNames(dres.NewPermissions),
		}))
	}

	if dres.VersionChanged {
		rep.addError(etdi.NewError(etdi.KindVersion, rep.ToolID,
			"version changed from approved %s", dres.Approved.Version))
	}
	if dres.PermissionsChanged {
		rep.addError(etdi.NewError(etdi.KindPermission, rep.ToolID,
			"permission set differs from the approved set"))
	}
	if dres.ProviderChanged {
		rep.addError(etdi.NewError(etdi.KindVersion, rep.ToolID,
			"provider changed from approved %s", dres.Approved.Provider.ID))
	}
	if !dres.HasChanges && dres.HashChanged {
		rep.addError(etdi.NewError(etdi.KindVersion, rep.ToolID,
			"definition content changed since approval"))
	}

	if dres.RequiresReapproval() {
		if p.cfg.SecurityLevel == LevelStrict {
			rep.reject("standing approval no longer covers the definition")
			return
		}
		rep.downgrade(VerdictRequiresApproval, "definition drifted from the approved one")
	}
}

// validateToken runs the token stage when the level and the definition
// call for it.
func (p *Pipeline) validateToken(ctx context.Context, rep *Report, def *tooldef.ToolDefinition) {
	if p.cfg.SecurityLevel == LevelBasic {
		return
	}
	if !def.HasOAuth() {
		if p.cfg.SecurityLevel == LevelStrict {
			rep.addError(etdi.NewError(etdi.KindOAuth, def.ID, "no oauth security declared"))
			rep.reject("strict level requires oauth-backed tools")
		}
		return
	}
	res := p.oauth.ValidateFor(ctx, def)
	if !res.Valid {
		cerr := classify(res.Err, etdi.KindTokenValidation, def.ID)
		rep.Token = &StageResult{Err: cerr}
		rep.addError(cerr)
		rep.reject("token validation failed")
		return
	}
	rep.Token = &StageResult{OK: true}
}

// CallOptions carry the per-invocation inputs of AuthorizeCall. An absent
// Request skips the signature and argument checks, unless the
// configuration mandates request signing for the callee.
type CallOptions struct {
	Request    *signature.SignedRequest
	RequestKey crypto.PublicKey
}

// AuthorizeCall checks a prospective invocation of callee on top of
// stack: request-signature enforcement when mandated, argument validation
// against the callee's input schema when a request body is presented, then
// the call stack verifier's depth, cycle, policy, and chain approval
// checks. Denials are reported in the CallAuthorization, never as an
// error; the error return is reserved for infrastructure faults.
func (p *Pipeline) AuthorizeCall(ctx context.Context, stack *callstack.Stack, callee *tooldef.ToolDefinition, opts CallOptions) (*CallAuthorization, error) {
	if p.cfg.requestSigningRequired(callee.RequireRequestSigning) {
		if reason := p.verifySignedRequest(callee, opts); reason != "" {
			return &CallAuthorization{Kind: etdi.KindSignature, Reason: reason}, nil
		}
	}

	if opts.Request != nil && callee.Schema != nil {
		if err := tooldef.ValidateArguments(callee, opts.Request.ArgumentsJSON); err != nil {
			p.logger.Warn("arguments rejected",
				zap.String("tool_id", callee.ID),
				zap.Error(err),
			)
			return &CallAuthorization{Kind: etdi.KindSchema, Reason: "arguments do not satisfy the input schema"}, nil
		}
	}

	h, err := p.calls.Enter(ctx, stack, callee)
	if err != nil {
		if etdi.IsStoreFault(err) {
			return nil, err
		}
		return &CallAuthorization{
			Kind:    etdi.KindOf(err),
			Reason:  reasonOf(err),
			Pending: errors.Is(err, callstack.ErrChainApprovalPending),
		}, nil
	}
	return &CallAuthorization{Allowed: true, Handle: h}, nil
}

// verifySignedRequest returns the denial reason, or "" when the request
// verifies. Failures emit SECURITY_VIOLATION: a missing or forged request
// signature at a level that mandates one is an attack shape, not a
// malformed input.
func (p *Pipeline) verifySignedRequest(callee *tooldef.ToolDefinition, opts CallOptions) string {
	deny := func(reason string) string {
		p.bus.Publish(events.NewThreat(events.SecurityViolation, source, "request_forgery", map[string]any{
			"tool_id": callee.ID,
			"reason":  reason,
		}))
		p.logger.Warn("signed request rejected",
			zap.String("tool_id", callee.ID),
			zap.String("reason", reason),
		)
		return reason
	}

	if opts.Request == nil {
		return deny("signed request required")
	}
	if opts.Request.ToolID != callee.ID {
		return deny("signed request is bound to a different tool")
	}
	if opts.RequestKey == nil {
		return deny("no verification key for the signed request")
	}
	if err := signature.VerifyRequest(opts.RequestKey, opts.Request, p.cfg.RequestFreshness, p.now()); err != nil {
		return deny(reasonOf(err))
	}
	return ""
}

// ExitCall pops the frame for handle in strict LIFO order.
func (p *Pipeline) ExitCall(stack *callstack.Stack, handle callstack.Handle) error {
	return p.calls.Exit(stack, handle)
}

// ReleaseStack drops every live frame; cancellation and teardown paths
// use it so frames never leak past their request.
func (p *Pipeline) ReleaseStack(stack *callstack.Stack) {
	p.calls.Release(stack)
}

// Approve records a user decision: it captures def into the approval
// store, superseding any prior record for the tool id, and emits
// TOOL_APPROVED. Only the approval-management surface calls this.
func (p *Pipeline) Approve(ctx context.Context, def *tooldef.ToolDefinition) (*approval.Record, error) {
	rec, err := approval.NewRecord(def, p.now())
	if err != nil {
		return nil, etdi.WrapError(etdi.KindSchema, def.ID, err)
	}
	if err := p.store.Put(ctx, rec); err != nil {
		if etdi.IsStoreFault(err) {
			return nil, err
		}
		return nil, etdi.WrapError(etdi.KindStore, def.ID, err)
	}
	p.bus.Publish(events.New(events.ToolApproved, source, map[string]any{
		"tool_id": def.ID,
		"version": def.Version,
	}))
	p.logger.Info("tool approved",
		zap.String("tool_id", def.ID),
		zap.String("version", def.Version),
	)
	return rec, nil
}

// Revoke deletes the standing approval for toolID.
func (p *Pipeline) Revoke(ctx context.Context, toolID string) error {
	if err := p.store.Delete(ctx, toolID); err != nil {
		if etdi.IsStoreFault(err) {
			return err
		}
		return etdi.WrapError(etdi.KindStore, toolID, err)
	}
	p.logger.Info("approval revoked", zap.String("tool_id", toolID))
	return nil
}

func (p *Pipeline) finish(rep *Report, started time.Time) *Report {
	switch rep.Verdict {
	case VerdictVerified:
		p.bus.Publish(events.New(events.ToolVerified, source, map[string]any{
			"tool_id": rep.ToolID,
			"level":   p.cfg.SecurityLevel.String(),
		}))
	case VerdictRejected:
		if p.cfg.SecurityLevel == LevelStrict {
			p.bus.Publish(events.NewThreat(events.SecurityViolation, source, "policy_violation", map[string]any{
				"tool_id": rep.ToolID,
				"reason":  rep.Reason,
			}))
		}
	}
	p.metrics.ObserveVerification(p.cfg.SecurityLevel.String(), rep.Verdict.String(), time.Since(started).Seconds())

	if rep.Verdict == VerdictRejected {
		p.logger.Warn("tool rejected",
			zap.String("tool_id", rep.ToolID),
			zap.String("reason", rep.Reason),
		)
	} else {
		p.logger.Debug("verification pass finished",
			zap.String("tool_id", rep.ToolID),
			zap.String("verdict", rep.Verdict.String()),
		)
	}
	return rep
}

func classify(err error, kind etdi.Kind, toolID string) *etdi.Error {
	var ce *etdi.Error
	if errors.As(err, &ce) {
		return ce
	}
	return etdi.WrapError(kind, toolID, err)
}

func reasonOf(err error) string {
	var ce *etdi.Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return err.Error()
}

func scopeNames(perms []tooldef.Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Scope
	}
	return names
}
