// Package callstack enforces invocation-chain policy while tool calls are
// in flight: depth bounds, cycle rejection, caller/callee allow and block
// lists, and standing chain approvals. A Stack is request-scoped state; the
// Verifier that operates on it is shared and stateless.
package callstack

import (
	"sync"

	"github.com/vineethsai/etdi-go/tooldef"
)

// Handle identifies one pushed frame. Callers hold it opaque and present it
// back to Exit exactly once.
type Handle string

// Frame is one live invocation on a request's stack. CallerID is empty for
// the root frame.
type Frame struct {
	ToolID   string
	CallerID string
	Depth    int

	handle      Handle
	constraints tooldef.CallConstraints
}

// Stack holds the live invocation frames of one top-level request, root
// first. Each request owns its stack; the mutex exists because cancellation
// cleanup may run on a different goroutine than the request body.
type Stack struct {
	mu     sync.Mutex
	frames []Frame
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Depth returns the number of live frames.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Frames returns a copy of the live frames, root first.
func (s *Stack) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// Chain returns the tool ids of the live frames, root first.
func (s *Stack) Chain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainLocked()
}

// clear drops every frame and returns how many were live.
func (s *Stack) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.frames)
	s.frames = nil
	return n
}

// Callers below hold s.mu.

func (s *Stack) topLocked() (Frame, bool) {
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *Stack) containsLocked(toolID string) bool {
	for _, f := range s.frames {
		if f.ToolID == toolID {
			return true
		}
	}
	return false
}

func (s *Stack) chainLocked() []string {
	ids := make([]string, len(s.frames))
	for i, f := range s.frames {
		ids[i] = f.ToolID
	}
	return ids
}
