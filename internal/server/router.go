// Package server exposes the verification pipeline over HTTP: tool
// verification, approval management, chain approvals, and call stack
// sessions. Handlers never interpret infrastructure faults as verdicts;
// a store outage is a 503, a denial is a 403 with the classified reason.
package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vineethsai/etdi-go/approval"
	"github.com/vineethsai/etdi-go/callstack"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/internal/config"
	"github.com/vineethsai/etdi-go/metrics"
	"github.com/vineethsai/etdi-go/pipeline"
	"github.com/vineethsai/etdi-go/signature"
)

const source = "api"

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Pipeline  *pipeline.Pipeline
	Sessions  *callstack.Sessions
	Approvals approval.Store
	Chains    approval.ChainStore
	Bus       *events.Bus
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	// RequestKeys resolves client verification keys for signed invocation
	// requests, keyed by signer id. Nil when request signing is unused.
	RequestKeys signature.KeySource

	Keys     []config.APIKey
	CacheTTL time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()
	auth := deps.authMiddleware()
	if len(deps.Keys) == 0 {
		deps.Logger.Warn("no API keys configured, authentication disabled")
	}

	mux.HandleFunc("POST /v1/etdi/verify", auth(deps.handleVerify))

	mux.HandleFunc("POST /v1/etdi/approvals", auth(deps.handleApprove))
	mux.HandleFunc("GET /v1/etdi/approvals/{tool_id}", auth(deps.handleGetApproval))
	mux.HandleFunc("DELETE /v1/etdi/approvals/{tool_id}", auth(deps.handleRevokeApproval))

	mux.HandleFunc("POST /v1/etdi/chains/{caller}/{callee}", auth(deps.handleApproveChain))
	mux.HandleFunc("DELETE /v1/etdi/chains/{caller}/{callee}", auth(deps.handleRevokeChain))

	mux.HandleFunc("POST /v1/etdi/stacks", auth(deps.handleCreateStack))
	mux.HandleFunc("POST /v1/etdi/stacks/{stack_id}/enter", auth(deps.handleEnter))
	mux.HandleFunc("POST /v1/etdi/stacks/{stack_id}/exit", auth(deps.handleExit))
	mux.HandleFunc("DELETE /v1/etdi/stacks/{stack_id}", auth(deps.handleEndStack))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	return deps.requestLogging(mux)
}

// zapError is a helper to create a zap field from an error.
func zapError(err error) zap.Field {
	return zap.Error(err)
}
