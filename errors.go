package etdi

import (
	"errors"
	"fmt"
)

// Kind classifies a verification or authorization failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindSignature        // malformed, absent, or mismatched definition signature
	KindVersion          // unapproved version drift
	KindPermission       // permission set violates required scopes or gained unapproved entries
	KindOAuth            // token acquisition/refresh failure at the collaborator boundary
	KindTokenValidation  // malformed, expired, or wrong-audience token
	KindCallStack        // depth, cycle, or chaining policy violation
	KindSchema           // tool definition declares an input schema that does not compile
	KindStore            // approval persistence unavailable — infrastructure, never a verdict
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindVersion:
		return "version"
	case KindPermission:
		return "permission"
	case KindOAuth:
		return "oauth"
	case KindTokenValidation:
		return "token_validation"
	case KindCallStack:
		return "call_stack"
	case KindSchema:
		return "schema"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is a classified failure carrying the tool it concerns and a
// human-readable reason. Verification and authorization operations return
// these as decision outcomes; only KindStore represents an infrastructure
// fault that must propagate instead of becoming a verdict.
type Error struct {
	Kind   Kind
	ToolID string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.ToolID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: tool %s: %s", e.Kind, e.ToolID, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error with a formatted reason.
func NewError(kind Kind, toolID, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		ToolID: toolID,
		Reason: fmt.Sprintf(format, args...),
	}
}

// WrapError builds a classified error around an underlying cause.
func WrapError(kind Kind, toolID string, err error) *Error {
	return &Error{
		Kind:   kind,
		ToolID: toolID,
		Reason: err.Error(),
		Err:    err,
	}
}

// KindOf returns the classification of err, or KindUnknown when err carries
// no *Error in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsStoreFault reports whether err is an infrastructure failure from the
// approval store. Callers must never interpret a store fault as an approval
// or denial.
func IsStoreFault(err error) bool {
	return IsKind(err, KindStore)
}
