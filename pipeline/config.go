package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// SecurityLevel selects how much of the verification chain runs and how
// failures are treated.
type SecurityLevel int

const (
	// LevelBasic skips token validation and tolerates unsigned tools.
	LevelBasic SecurityLevel = iota
	// LevelEnhanced runs full verification; unsigned legacy tools pass
	// only when AllowNonETDITools is set.
	LevelEnhanced
	// LevelStrict rejects unsigned, unapproved, and non-OAuth tools and
	// makes request signing mandatory.
	LevelStrict
)

// String returns the lowercase level name.
func (l SecurityLevel) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelEnhanced:
		return "enhanced"
	case LevelStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseSecurityLevel reads a level name, case-insensitively.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return LevelBasic, nil
	case "enhanced":
		return LevelEnhanced, nil
	case "strict":
		return LevelStrict, nil
	default:
		return LevelBasic, fmt.Errorf("ParseSecurityLevel: unknown level %q", s)
	}
}

// ReportMode selects whether VerifyTool stops at the first hard failure
// or runs every stage and reports everything it found.
type ReportMode int

const (
	FailFast ReportMode = iota
	FullReport
)

// String returns the lowercase mode name.
func (m ReportMode) String() string {
	switch m {
	case FailFast:
		return "fail_fast"
	case FullReport:
		return "full_report"
	default:
		return "unknown"
	}
}

// Config is the pipeline's behavior surface. ShowUnverifiedTools is a
// presentation flag for callers listing tools; it never changes a
// verification outcome.
type Config struct {
	SecurityLevel        SecurityLevel
	AllowNonETDITools    bool
	ShowUnverifiedTools  bool
	EnableRequestSigning bool
	Mode                 ReportMode

	// RequestFreshness bounds the age of signed invocation requests.
	// Zero selects the signature package default.
	RequestFreshness time.Duration
}

// toleratesUnsigned reports whether an unsigned definition skips the
// signature stage instead of failing it.
func (c Config) toleratesUnsigned() bool {
	switch c.SecurityLevel {
	case LevelBasic:
		return true
	case LevelEnhanced:
		return c.AllowNonETDITools
	default:
		return false
	}
}

// requestSigningRequired reports whether an invocation of callee must
// present a valid signed request. Strict level mandates signing for every
// call; below strict it is opt-in per tool and gated by the global flag.
func (c Config) requestSigningRequired(requireRequestSigning bool) bool {
	if c.SecurityLevel == LevelStrict {
		return true
	}
	return c.EnableRequestSigning && requireRequestSigning
}
