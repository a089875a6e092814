// Package events defines the security event taxonomy and the in-process
// bus that fans events out to observers. The bus is constructed explicitly
// and injected into each component; there is no ambient global bus, so
// tests can run an isolated bus per case.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates everything the engine can observe. The set is closed:
// observers dispatch over it exhaustively, switching on Category for
// coarse routing and on Type for specifics.
type Type int

const (
	ToolDiscovered Type = iota
	ToolVerified
	ToolApproved
	ToolInvoked
	ToolUpdated
	SignatureVerified
	SignatureFailed
	VersionChanged
	PermissionChanged
	SecurityViolation
	TokenAcquired
	TokenValidated
	TokenRefreshed
	TokenExpired
	TokenRevoked
	CallStackViolation
	CallDepthExceeded
	CircularCallDetected
	PrivilegeEscalationDetected
)

// String returns the canonical wire name of the type.
func (t Type) String() string {
	switch t {
	case ToolDiscovered:
		return "TOOL_DISCOVERED"
	case ToolVerified:
		return "TOOL_VERIFIED"
	case ToolApproved:
		return "TOOL_APPROVED"
	case ToolInvoked:
		return "TOOL_INVOKED"
	case ToolUpdated:
		return "TOOL_UPDATED"
	case SignatureVerified:
		return "SIGNATURE_VERIFIED"
	case SignatureFailed:
		return "SIGNATURE_FAILED"
	case VersionChanged:
		return "VERSION_CHANGED"
	case PermissionChanged:
		return "PERMISSION_CHANGED"
	case SecurityViolation:
		return "SECURITY_VIOLATION"
	case TokenAcquired:
		return "TOKEN_ACQUIRED"
	case TokenValidated:
		return "TOKEN_VALIDATED"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	case TokenExpired:
		return "TOKEN_EXPIRED"
	case TokenRevoked:
		return "TOKEN_REVOKED"
	case CallStackViolation:
		return "CALL_STACK_VIOLATION"
	case CallDepthExceeded:
		return "CALL_DEPTH_EXCEEDED"
	case CircularCallDetected:
		return "CIRCULAR_CALL_DETECTED"
	case PrivilegeEscalationDetected:
		return "PRIVILEGE_ESCALATION_DETECTED"
	default:
		return "UNKNOWN"
	}
}

// Category groups event types for observer routing and audit partitioning.
type Category int

const (
	CategoryTool Category = iota
	CategorySecurity
	CategoryOAuth
	CategoryCallStack
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategorySecurity:
		return "security"
	case CategoryOAuth:
		return "oauth"
	case CategoryCallStack:
		return "callstack"
	default:
		return "tool"
	}
}

// Category returns the group a type belongs to.
func (t Type) Category() Category {
	switch t {
	case ToolDiscovered, ToolVerified, ToolApproved, ToolInvoked, ToolUpdated:
		return CategoryTool
	case SignatureVerified, SignatureFailed, VersionChanged, PermissionChanged,
		SecurityViolation, PrivilegeEscalationDetected:
		return CategorySecurity
	case TokenAcquired, TokenValidated, TokenRefreshed, TokenExpired, TokenRevoked:
		return CategoryOAuth
	case CallStackViolation, CallDepthExceeded, CircularCallDetected:
		return CategoryCallStack
	default:
		return CategoryTool
	}
}

// Severity ranks how urgently an observer should treat an event.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "low"
	}
}

// DefaultSeverity returns the severity an event of this type carries unless
// the emitter overrides it.
func (t Type) DefaultSeverity() Severity {
	switch t {
	case SignatureFailed, SecurityViolation, CallStackViolation,
		CircularCallDetected, PrivilegeEscalationDetected:
		return SeverityHigh
	case VersionChanged, PermissionChanged, TokenExpired, TokenRevoked,
		CallDepthExceeded:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Event is an immutable record of something the engine observed. Events are
// append-only facts: once published they are never retracted, and observers
// must treat Detail as read-only.
type Event struct {
	ID         string
	Type       Type
	Source     string
	Severity   Severity
	ThreatType string
	Detail     map[string]any
	Timestamp  time.Time
}

// New builds an event of type t emitted by source, stamped now, carrying
// the type's default severity.
func New(t Type, source string, detail map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Severity:  t.DefaultSeverity(),
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}

// NewThreat builds an event tagged with a threat type, eg "tool_poisoning"
// or "rug_pull".
func NewThreat(t Type, source, threat string, detail map[string]any) Event {
	e := New(t, source, detail)
	e.ThreatType = threat
	return e
}
