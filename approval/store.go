// Package approval persists the user's consent decisions: one live record
// per tool id, plus standing approvals for (caller, callee) chain pairs.
// The engine only ever reads records and compares them against incoming
// definitions; writing a new record is an explicit act triggered by a user
// decision, never a side effect of verification.
package approval

import (
	"context"
	"time"

	"github.com/vineethsai/etdi-go/tooldef"
)

// Record is the user's last decision for a tool id: which version and
// content hash they saw, which permissions they granted, and who published
// it. Exactly one live record exists per tool id; a re-approval supersedes
// the prior record atomically.
type Record struct {
	ToolID      string               `json:"tool_id"`
	Version     string               `json:"version"`
	ContentHash string               `json:"content_hash"`
	Provider    tooldef.Provider     `json:"provider"`
	Permissions []tooldef.Permission `json:"permissions"`
	ApprovedAt  time.Time            `json:"approved_at"`
}

// NewRecord captures a definition into an approval record, computing the
// content hash over the user-consented fields.
func NewRecord(def *tooldef.ToolDefinition, at time.Time) (*Record, error) {
	hash, err := tooldef.ContentHash(def)
	if err != nil {
		return nil, err
	}
	return &Record{
		ToolID:      def.ID,
		Version:     def.Version,
		ContentHash: hash,
		Provider:    def.Provider,
		Permissions: append([]tooldef.Permission(nil), def.Permissions...),
		ApprovedAt:  at.UTC(),
	}, nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Permissions = append([]tooldef.Permission(nil), r.Permissions...)
	return &out
}

// Store is the approval persistence contract. Get returns (nil, nil) when
// no record exists. Put replaces the prior record for the same tool id
// atomically; readers never observe a partial write. Any returned error is
// an infrastructure fault (etdi.KindStore), never a verdict.
type Store interface {
	Get(ctx context.Context, toolID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, toolID string) error
}

// ChainStore holds standing approvals for (caller, callee) invocation
// pairs, consulted when a callee requires chain approval.
type ChainStore interface {
	ChainApproved(ctx context.Context, callerID, calleeID string) (bool, error)
	ApproveChain(ctx context.Context, callerID, calleeID string) error
	RevokeChain(ctx context.Context, callerID, calleeID string) error
}
