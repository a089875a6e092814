package approval

import (
	"context"
	"testing"
	"time"

	"github.com/vineethsai/etdi-go/tooldef"
)

func record(toolID, version string, scopes ...string) *Record {
	perms := make([]tooldef.Permission, len(scopes))
	for i, s := range scopes {
		perms[i] = tooldef.Permission{Name: s, Scope: s, Required: true}
	}
	return &Record{
		ToolID:      toolID,
		Version:     version,
		ContentHash: "hash-" + version,
		Provider:    tooldef.Provider{ID: "acme"},
		Permissions: perms,
		ApprovedAt:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected no record for unapproved tool")
	}

	if err := s.Put(ctx, record("calculator", "1.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}
	got, err = s.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Version != "1.0.0" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := s.Delete(ctx, "calculator"); err != nil {
		t.Fatal(err)
	}
	got, err = s.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("record survived delete")
	}
}

func TestMemoryStore_PutSupersedes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Put(ctx, record("calculator", "1.0.0", "calc:execute")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, record("calculator", "2.0.0", "calc:execute", "files:read")); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "2.0.0" || len(got.Permissions) != 2 {
		t.Fatalf("re-approval did not supersede: %+v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one live record per tool id, got %d", s.Len())
	}
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := record("calculator", "1.0.0", "calc:execute")
	if err := s.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Permissions[0].Scope = "mutated-after-put"

	got, err := s.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if got.Permissions[0].Scope != "calc:execute" {
		t.Fatal("store shares memory with caller's record")
	}

	got.Permissions[0].Scope = "mutated-after-get"
	again, err := s.Get(ctx, "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if again.Permissions[0].Scope != "calc:execute" {
		t.Fatal("reader mutated stored record")
	}
}

func TestMemoryStore_Chains(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.ChainApproved(ctx, "orchestrator", "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("unapproved chain reported approved")
	}

	if err := s.ApproveChain(ctx, "orchestrator", "calculator"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.ChainApproved(ctx, "orchestrator", "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("approved chain not found")
	}

	// Direction matters.
	ok, err = s.ChainApproved(ctx, "calculator", "orchestrator")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("reverse chain direction reported approved")
	}

	if err := s.RevokeChain(ctx, "orchestrator", "calculator"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.ChainApproved(ctx, "orchestrator", "calculator")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("revoked chain still approved")
	}
}

func TestNewRecord(t *testing.T) {
	def := &tooldef.ToolDefinition{
		ID:       "calculator",
		Name:     "Calculator",
		Version:  "1.0.0",
		Provider: tooldef.Provider{ID: "acme"},
		Permissions: []tooldef.Permission{
			{Name: "compute", Scope: "calc:execute", Required: true},
		},
	}
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	rec, err := NewRecord(def, at)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ToolID != "calculator" || rec.Version != "1.0.0" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ContentHash == "" {
		t.Fatal("expected content hash")
	}
	if !rec.ApprovedAt.Equal(at) {
		t.Fatalf("unexpected timestamp %v", rec.ApprovedAt)
	}

	wantHash, err := tooldef.ContentHash(def)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ContentHash != wantHash {
		t.Fatal("record hash differs from definition content hash")
	}
}
