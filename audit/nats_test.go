package audit

import (
	"encoding/json"
	"testing"

	"github.com/vineethsai/etdi-go/events"
)

func TestSubjectFor(t *testing.T) {
	cases := []struct {
		typ  events.Type
		want string
	}{
		{events.ToolVerified, "etdi.events.tool.tool_verified"},
		{events.SignatureFailed, "etdi.events.security.signature_failed"},
		{events.TokenValidated, "etdi.events.oauth.token_validated"},
		{events.CallStackViolation, "etdi.events.callstack.call_stack_violation"},
	}
	for _, c := range cases {
		e := events.New(c.typ, "test", nil)
		if got := subjectFor(defaultSubjectPrefix, e); got != c.want {
			t.Fatalf("subject for %s: got %q, want %q", c.typ, got, c.want)
		}
	}
}

func TestToWire(t *testing.T) {
	e := events.NewThreat(events.SignatureFailed, "signature_verifier", "tool_poisoning", map[string]any{
		"tool_id": "calculator",
	})
	data, err := json.Marshal(toWire(e))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "SIGNATURE_FAILED" {
		t.Fatalf("expected wire type name, got %v", decoded["type"])
	}
	if decoded["category"] != "security" || decoded["severity"] != "high" {
		t.Fatalf("unexpected category/severity: %v / %v", decoded["category"], decoded["severity"])
	}
	if decoded["threat_type"] != "tool_poisoning" {
		t.Fatalf("expected threat type, got %v", decoded["threat_type"])
	}
	detail, ok := decoded["detail"].(map[string]any)
	if !ok || detail["tool_id"] != "calculator" {
		t.Fatalf("unexpected detail: %v", decoded["detail"])
	}
	if decoded["id"] == "" || decoded["timestamp"] == "" {
		t.Fatal("expected id and timestamp on the wire")
	}
}

func TestToWire_OmitsEmptyThreat(t *testing.T) {
	e := events.New(events.ToolVerified, "pipeline", nil)
	data, err := json.Marshal(toWire(e))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, present := decoded["threat_type"]; present {
		t.Fatal("threat_type must be omitted when empty")
	}
	if _, present := decoded["detail"]; present {
		t.Fatal("detail must be omitted when empty")
	}
}
