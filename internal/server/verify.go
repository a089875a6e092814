package server

import (
	"net/http"

	"github.com/vineethsai/etdi-go/drift"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/pipeline"
	"github.com/vineethsai/etdi-go/tooldef"
)

// handleVerify implements POST /v1/etdi/verify. The ?full_report=true
// toggle runs every stage instead of stopping at the first rejection.
func (d *Dependencies) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Tool == nil || req.Tool.ID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool with an id is required"})
		return
	}

	d.Bus.Publish(events.New(events.ToolDiscovered, source, map[string]any{
		"tool_id":  req.Tool.ID,
		"version":  req.Tool.Version,
		"provider": req.Tool.Provider.ID,
	}))

	pipe := d.Pipeline
	if q := r.URL.Query().Get("full_report"); q == "true" || q == "1" {
		pipe = pipe.WithMode(pipeline.FullReport)
	}

	rep, err := pipe.VerifyTool(r.Context(), req.Tool)
	if err != nil {
		d.Logger.Error("verification unavailable", zapError(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Approval store unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, verifyResp(rep, d.Pipeline.Config().ShowUnverifiedTools))
}

func verifyResp(rep *pipeline.Report, showUnverified bool) VerifyResp {
	resp := VerifyResp{
		ToolID:  rep.ToolID,
		Verdict: rep.Verdict.String(),
		Reason:  rep.Reason,
		Visible: visibleVerdict(rep.Verdict, showUnverified),
		Stages: StagesResp{
			Schema:    stageStatus(rep.Schema),
			Signature: stageStatus(rep.Signature),
			Token:     stageStatus(rep.Token),
		},
		Changes: changesResp(rep.Changes),
	}
	for _, e := range rep.Errors {
		resp.Errors = append(resp.Errors, ErrorDetail{Kind: e.Kind.String(), Reason: e.Reason})
	}
	return resp
}

func changesResp(res *drift.Result) *ChangesResp {
	if res == nil {
		return nil
	}
	return &ChangesResp{
		FirstUse:           res.FirstUse,
		VersionChanged:     res.VersionChanged,
		PermissionsChanged: res.PermissionsChanged,
		ProviderChanged:    res.ProviderChanged,
		ContentChanged:     res.HashChanged,
		AddedScopes:        scopeList(res.NewPermissions),
		RemovedScopes:      scopeList(res.RemovedPermissions),
		RequiresReapproval: res.RequiresReapproval(),
	}
}

func scopeList(perms []tooldef.Permission) []string {
	if len(perms) == 0 {
		return nil
	}
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.Scope
	}
	return out
}

// visibleVerdict reports whether a listing should show the tool: rejected
// tools never appear, unverified ones only when the configuration says so.
func visibleVerdict(v pipeline.Verdict, showUnverified bool) bool {
	switch v {
	case pipeline.VerdictVerified, pipeline.VerdictRequiresApproval:
		return true
	case pipeline.VerdictUnverified:
		return showUnverified
	default:
		return false
	}
}
