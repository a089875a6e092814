// Package drift classifies how an incoming tool definition differs from
// the approval the user last granted. The detector only reads the approval
// store and reports; acting on drift (re-approval, rejection) is the
// pipeline's job, and nothing here ever writes a record.
package drift

import (
	"context"
	"strings"

	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/approval"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/tooldef"
)

const source = "change_detector"

// Result classifies the drift between an incoming definition and the
// stored approval. HasChanges covers the three attribute flags; HashChanged
// is reported separately because a content change at an identical version
// and permission set is still a re-approval signal.
type Result struct {
	FirstUse           bool
	HasChanges         bool
	VersionChanged     bool
	PermissionsChanged bool
	ProviderChanged    bool
	HashChanged        bool
	NewPermissions     []tooldef.Permission
	RemovedPermissions []tooldef.Permission
	Approved           *approval.Record
}

// RequiresReapproval reports whether the definition may not run on the
// standing approval: first use, attribute drift, and silent content drift
// all require a fresh user decision.
func (r *Result) RequiresReapproval() bool {
	return r.FirstUse || r.HasChanges || r.HashChanged
}

// Detector compares incoming definitions against stored approvals.
type Detector struct {
	store  approval.Store
	bus    *events.Bus
	logger *zap.Logger
}

// NewDetector builds a Detector reading from store.
func NewDetector(store approval.Store, bus *events.Bus, logger *zap.Logger) *Detector {
	return &Detector{store: store, bus: bus, logger: logger}
}

// Detect fetches the approval record for def's tool id and classifies the
// drift. A missing record is first use, not a change. Emits VERSION_CHANGED
// and PERMISSION_CHANGED, in that order, when the respective drift is
// present; both may fire in one pass. Store faults propagate as
// infrastructure errors, never as a drift verdict.
func (d *Detector) Detect(ctx context.Context, def *tooldef.ToolDefinition) (*Result, error) {
	rec, err := d.store.Get(ctx, def.ID)
	if err != nil {
		if etdi.IsStoreFault(err) {
			return nil, err
		}
		return nil, etdi.WrapError(etdi.KindStore, def.ID, err)
	}
	if rec == nil {
		return &Result{FirstUse: true}, nil
	}

	res := &Result{Approved: rec}
	res.VersionChanged = !tooldef.SameVersion(rec.Version, def.Version)
	res.ProviderChanged = rec.Provider.ID != def.Provider.ID
	res.NewPermissions, res.RemovedPermissions = tooldef.DiffScopes(rec.Permissions, def.Permissions)
	res.PermissionsChanged = len(res.NewPermissions) > 0 || len(res.RemovedPermissions) > 0
	res.HasChanges = res.VersionChanged || res.ProviderChanged || res.PermissionsChanged

	hash, err := tooldef.ContentHash(def)
	if err != nil {
		return nil, etdi.WrapError(etdi.KindSchema, def.ID, err)
	}
	res.HashChanged = hash != rec.ContentHash

	if res.VersionChanged {
		d.bus.Publish(events.New(events.VersionChanged, source, map[string]any{
			"tool_id":          def.ID,
			"approved_version": rec.Version,
			"incoming_version": def.Version,
		}))
	}
	if res.PermissionsChanged {
		d.bus.Publish(events.NewThreat(events.PermissionChanged, source, "rug_pull", map[string]any{
			"tool_id":        def.ID,
			"added_scopes":   scopeList(res.NewPermissions),
			"removed_scopes": scopeList(res.RemovedPermissions),
		}))
	}
	if res.HasChanges || res.HashChanged {
		d.logger.Info("definition drift detected",
			zap.String("tool_id", def.ID),
			zap.Bool("version", res.VersionChanged),
			zap.Bool("permissions", res.PermissionsChanged),
			zap.Bool("provider", res.ProviderChanged),
			zap.Bool("content_hash", res.HashChanged),
		)
	}
	return res, nil
}

func scopeList(perms []tooldef.Permission) string {
	scopes := make([]string, len(perms))
	for i, p := range perms {
		scopes[i] = p.Scope
	}
	return strings.Join(scopes, " ")
}
