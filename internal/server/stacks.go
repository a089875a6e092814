package server

import (
	"net/http"

	"github.com/vineethsai/etdi-go/callstack"
	"github.com/vineethsai/etdi-go/pipeline"
	"github.com/vineethsai/etdi-go/tooldef"
)

func (d *Dependencies) handleCreateStack(w http.ResponseWriter, _ *http.Request) {
	id, _ := d.Sessions.Create()
	writeJSON(w, http.StatusCreated, CreateStackResp{StackID: id})
}

// handleEnter implements POST /v1/etdi/stacks/{stack_id}/enter. A denial
// is a 403 carrying the classified reason; only store faults are 503.
func (d *Dependencies) handleEnter(w http.ResponseWriter, r *http.Request) {
	stack, ok := d.Sessions.Get(r.PathValue("stack_id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Stack not found."})
		return
	}

	var req EnterReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Tool == nil || req.Tool.ID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool with an id is required"})
		return
	}

	opts := pipeline.CallOptions{Request: req.SignedRequest}
	if req.SignerID != "" && d.RequestKeys != nil {
		// An unknown signer leaves the key nil; the pipeline denies with
		// the reason instead of the handler guessing one.
		if key, err := d.RequestKeys.SigningKey(r.Context(), tooldef.Provider{ID: req.SignerID}); err == nil {
			opts.RequestKey = key
		}
	}

	auth, err := d.Pipeline.AuthorizeCall(r.Context(), stack, req.Tool, opts)
	if err != nil {
		d.Logger.Error("call authorization unavailable", zapError(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Approval store unavailable"})
		return
	}
	if !auth.Allowed {
		writeJSON(w, http.StatusForbidden, EnterResp{
			Allowed: false,
			Kind:    auth.Kind.String(),
			Reason:  auth.Reason,
			Pending: auth.Pending,
		})
		return
	}
	writeJSON(w, http.StatusOK, EnterResp{
		Allowed: true,
		Handle:  string(auth.Handle),
		Depth:   stack.Depth(),
	})
}

func (d *Dependencies) handleExit(w http.ResponseWriter, r *http.Request) {
	stack, ok := d.Sessions.Get(r.PathValue("stack_id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Stack not found."})
		return
	}

	var req ExitReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Handle == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "handle is required"})
		return
	}

	if err := d.Pipeline.ExitCall(stack, callstack.Handle(req.Handle)); err != nil {
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ExitResp{Depth: stack.Depth()})
}

// handleEndStack releases every frame the session still holds. Ending an
// unknown or expired stack succeeds; the caller's goal is already met.
func (d *Dependencies) handleEndStack(w http.ResponseWriter, r *http.Request) {
	d.Sessions.End(r.PathValue("stack_id"))
	w.WriteHeader(http.StatusNoContent)
}
