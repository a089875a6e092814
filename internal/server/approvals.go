package server

import (
	"net/http"

	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
)

func (d *Dependencies) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Tool == nil || req.Tool.ID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool with an id is required"})
		return
	}

	rec, err := d.Pipeline.Approve(r.Context(), req.Tool)
	if err != nil {
		if etdi.IsStoreFault(err) {
			d.Logger.Error("approval store unavailable", zapError(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Approval store unavailable"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Definition cannot be captured"})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (d *Dependencies) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tool_id")
	rec, err := d.Approvals.Get(r.Context(), id)
	if err != nil {
		d.Logger.Error("approval store unavailable", zapError(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Approval store unavailable"})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "No approval for tool."})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (d *Dependencies) handleRevokeApproval(w http.ResponseWriter, r *http.Request) {
	if err := d.Pipeline.Revoke(r.Context(), r.PathValue("tool_id")); err != nil {
		d.Logger.Error("approval store unavailable", zapError(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Approval store unavailable"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleApproveChain(w http.ResponseWriter, r *http.Request) {
	caller, callee := r.PathValue("caller"), r.PathValue("callee")
	if caller == callee {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "caller and callee must differ"})
		return
	}
	if err := d.Chains.ApproveChain(r.Context(), caller, callee); err != nil {
		d.Logger.Error("chain store unavailable", zapError(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Approval store unavailable"})
		return
	}
	d.Logger.Info("chain approved",
		zap.String("caller", caller),
		zap.String("callee", callee),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRevokeChain(w http.ResponseWriter, r *http.Request) {
	caller, callee := r.PathValue("caller"), r.PathValue("callee")
	if err := d.Chains.RevokeChain(r.Context(), caller, callee); err != nil {
		d.Logger.Error("chain store unavailable", zapError(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Approval store unavailable"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
