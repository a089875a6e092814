package pipeline

import (
	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/callstack"
	"github.com/vineethsai/etdi-go/drift"
)

// Verdict is the pipeline's final word on a definition, ordered by
// severity so a report can only ever get worse as stages run.
type Verdict int

const (
	// VerdictVerified means every applicable stage passed and the
	// standing approval covers the definition.
	VerdictVerified Verdict = iota
	// VerdictUnverified marks an unsigned legacy tool the configuration
	// tolerates. It passed nothing; it merely was not rejected.
	VerdictUnverified
	// VerdictRequiresApproval means verification passed but no standing
	// approval covers this definition (first use or drift).
	VerdictRequiresApproval
	// VerdictRejected means the definition must not be invoked.
	VerdictRejected
)

// String returns the lowercase verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictVerified:
		return "verified"
	case VerdictUnverified:
		return "unverified"
	case VerdictRequiresApproval:
		return "requires_approval"
	case VerdictRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// StageResult records one verification stage. A nil *StageResult on the
// report means the stage did not run.
type StageResult struct {
	OK  bool
	Err *etdi.Error
}

// Report is the full outcome of one VerifyTool pass: the verdict, the
// first reason that set it, per-stage results, and every classified error
// the stages produced.
type Report struct {
	ToolID  string
	Verdict Verdict
	Reason  string

	Schema    *StageResult
	Signature *StageResult
	Token     *StageResult
	Changes   *drift.Result

	Errors []*etdi.Error
}

// downgrade worsens the verdict to v; it never improves one. The reason
// of the first downgrade to the final verdict is kept.
func (r *Report) downgrade(v Verdict, reason string) {
	if v > r.Verdict {
		r.Verdict = v
		r.Reason = reason
	}
}

func (r *Report) reject(reason string) {
	r.downgrade(VerdictRejected, reason)
}

func (r *Report) addError(err *etdi.Error) {
	r.Errors = append(r.Errors, err)
}

// CallAuthorization is the outcome of AuthorizeCall. Pending marks a
// denial that a standing chain approval would lift.
type CallAuthorization struct {
	Allowed bool
	Handle  callstack.Handle
	Kind    etdi.Kind
	Reason  string
	Pending bool
}
