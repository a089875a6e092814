package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vineethsai/etdi-go/events"
)

func TestOnEvent_CountsByTypeAndSeverity(t *testing.T) {
	m := New()

	m.OnEvent(context.Background(), events.New(events.ToolVerified, "pipeline", nil))
	m.OnEvent(context.Background(), events.New(events.ToolVerified, "pipeline", nil))
	m.OnEvent(context.Background(), events.NewThreat(events.SignatureFailed, "signature_verifier", "tool_poisoning", nil))

	verified := m.eventsTotal.WithLabelValues("TOOL_VERIFIED", "low")
	if got := testutil.ToFloat64(verified); got != 2 {
		t.Fatalf("expected 2 TOOL_VERIFIED, got %v", got)
	}
	failed := m.eventsTotal.WithLabelValues("SIGNATURE_FAILED", "high")
	if got := testutil.ToFloat64(failed); got != 1 {
		t.Fatalf("expected 1 SIGNATURE_FAILED, got %v", got)
	}
}

func TestOnEvent_CountsThreats(t *testing.T) {
	m := New()

	m.OnEvent(context.Background(), events.NewThreat(events.PermissionChanged, "change_detector", "rug_pull", nil))
	m.OnEvent(context.Background(), events.New(events.ToolVerified, "pipeline", nil))

	if got := testutil.ToFloat64(m.violationsTotal.WithLabelValues("rug_pull")); got != 1 {
		t.Fatalf("expected 1 rug_pull violation, got %v", got)
	}
}

func TestObserveVerification(t *testing.T) {
	m := New()

	m.ObserveVerification("strict", "verified", 0.002)
	m.ObserveVerification("strict", "rejected", 0.001)
	m.ObserveVerification("strict", "rejected", 0.004)

	if got := testutil.ToFloat64(m.verificationsTotal.WithLabelValues("strict", "rejected")); got != 2 {
		t.Fatalf("expected 2 rejected verifications, got %v", got)
	}
	if got := testutil.ToFloat64(m.verificationsTotal.WithLabelValues("strict", "verified")); got != 1 {
		t.Fatalf("expected 1 verified verification, got %v", got)
	}
}
