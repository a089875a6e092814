package pipeline

import "testing"

func TestParseSecurityLevel(t *testing.T) {
	cases := []struct {
		in   string
		want SecurityLevel
	}{
		{"basic", LevelBasic},
		{"enhanced", LevelEnhanced},
		{"strict", LevelStrict},
		{"STRICT", LevelStrict},
		{"  Enhanced ", LevelEnhanced},
	}
	for _, c := range cases {
		got, err := ParseSecurityLevel(c.in)
		if err != nil {
			t.Fatalf("ParseSecurityLevel(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseSecurityLevel(%q) = %s, want %s", c.in, got, c.want)
		}
	}
	if _, err := ParseSecurityLevel("paranoid"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestToleratesUnsigned(t *testing.T) {
	cases := []struct {
		cfg  Config
		want bool
	}{
		{Config{SecurityLevel: LevelBasic}, true},
		{Config{SecurityLevel: LevelEnhanced}, false},
		{Config{SecurityLevel: LevelEnhanced, AllowNonETDITools: true}, true},
		{Config{SecurityLevel: LevelStrict}, false},
		{Config{SecurityLevel: LevelStrict, AllowNonETDITools: true}, false},
	}
	for _, c := range cases {
		if got := c.cfg.toleratesUnsigned(); got != c.want {
			t.Fatalf("toleratesUnsigned at %s (allow=%v) = %v, want %v",
				c.cfg.SecurityLevel, c.cfg.AllowNonETDITools, got, c.want)
		}
	}
}

func TestRequestSigningRequired(t *testing.T) {
	cases := []struct {
		cfg     Config
		perTool bool
		want    bool
	}{
		{Config{SecurityLevel: LevelStrict}, false, true},
		{Config{SecurityLevel: LevelEnhanced}, true, false},
		{Config{SecurityLevel: LevelEnhanced, EnableRequestSigning: true}, true, true},
		{Config{SecurityLevel: LevelEnhanced, EnableRequestSigning: true}, false, false},
		{Config{SecurityLevel: LevelBasic, EnableRequestSigning: true}, true, true},
	}
	for _, c := range cases {
		if got := c.cfg.requestSigningRequired(c.perTool); got != c.want {
			t.Fatalf("requestSigningRequired(%v) at %s (enable=%v) = %v, want %v",
				c.perTool, c.cfg.SecurityLevel, c.cfg.EnableRequestSigning, got, c.want)
		}
	}
}

func TestVerdictOrdering(t *testing.T) {
	if !(VerdictVerified < VerdictUnverified && VerdictUnverified < VerdictRequiresApproval && VerdictRequiresApproval < VerdictRejected) {
		t.Fatal("verdicts must be ordered by severity")
	}

	rep := &Report{Verdict: VerdictVerified}
	rep.downgrade(VerdictRequiresApproval, "first")
	rep.downgrade(VerdictUnverified, "weaker")
	if rep.Verdict != VerdictRequiresApproval || rep.Reason != "first" {
		t.Fatalf("downgrade must be monotonic and keep the first reason, got %s (%s)", rep.Verdict, rep.Reason)
	}
	rep.reject("fatal")
	rep.downgrade(VerdictRequiresApproval, "late")
	if rep.Verdict != VerdictRejected || rep.Reason != "fatal" {
		t.Fatalf("rejection must stick, got %s (%s)", rep.Verdict, rep.Reason)
	}
}
