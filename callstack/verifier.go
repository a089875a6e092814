package callstack

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/approval"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/tooldef"
)

const source = "call_stack_verifier"

// ErrChainApprovalPending marks a denial that a standing chain approval
// would lift. The (caller, callee) pair is surfaced for a user decision;
// the pair is not permanently refused.
var ErrChainApprovalPending = errors.New("chain approval pending")

// Verifier authorizes pushes onto request stacks. It is stateless apart
// from its collaborators and safe for concurrent use across stacks.
type Verifier struct {
	chains approval.ChainStore
	bus    *events.Bus
	logger *zap.Logger
}

// NewVerifier builds a Verifier consulting chains for standing (caller,
// callee) approvals.
func NewVerifier(chains approval.ChainStore, bus *events.Bus, logger *zap.Logger) *Verifier {
	return &Verifier{chains: chains, bus: bus, logger: logger}
}

// Enter authorizes invoking callee on top of stack and pushes a frame on
// success. The caller is the current top frame; an empty stack is a root
// call with no caller-side policy to evaluate. Checks run in fixed order:
// depth, cycle, block/allow lists (blocked wins over allowed), chain
// approval. Depth counts calls below the root frame, so a callee with
// MaxDepth 2 still accepts the chain root, one intermediary, itself.
//
// Every denial emits CALL_STACK_VIOLATION, with CALL_DEPTH_EXCEEDED or
// CIRCULAR_CALL_DETECTED following for those two checks, and leaves the
// stack unmodified. Success returns an opaque handle the caller must
// present to Exit exactly once, including on the callee's failure path.
func (v *Verifier) Enter(ctx context.Context, stack *Stack, callee *tooldef.ToolDefinition) (Handle, error) {
	stack.mu.Lock()
	defer stack.mu.Unlock()

	caller, hasCaller := stack.topLocked()
	depth := len(stack.frames)
	cc := constraintsOf(callee)

	if cc.MaxDepth > 0 && depth > cc.MaxDepth {
		reason := fmt.Sprintf("call depth %d exceeds limit %d", depth, cc.MaxDepth)
		v.emitViolation(callee.ID, caller.ToolID, reason, stack.chainLocked())
		v.bus.Publish(events.New(events.CallDepthExceeded, source, map[string]any{
			"tool_id":   callee.ID,
			"depth":     depth,
			"max_depth": cc.MaxDepth,
		}))
		return "", etdi.NewError(etdi.KindCallStack, callee.ID, "%s", reason)
	}

	if stack.containsLocked(callee.ID) {
		chain := stack.chainLocked()
		reason := "already on the call stack"
		v.emitViolation(callee.ID, caller.ToolID, reason, chain)
		v.bus.Publish(events.New(events.CircularCallDetected, source, map[string]any{
			"tool_id": callee.ID,
			"chain":   chain,
		}))
		return "", etdi.NewError(etdi.KindCallStack, callee.ID, "%s", reason)
	}

	if hasCaller {
		if reason := policyDeny(caller, callee.ID, cc); reason != "" {
			v.emitViolation(callee.ID, caller.ToolID, reason, stack.chainLocked())
			return "", etdi.NewError(etdi.KindCallStack, callee.ID, "%s", reason)
		}
		if cc.RequireChainApproval {
			ok, err := v.chains.ChainApproved(ctx, caller.ToolID, callee.ID)
			if err != nil {
				if etdi.IsStoreFault(err) {
					return "", err
				}
				return "", etdi.WrapError(etdi.KindStore, callee.ID, err)
			}
			if !ok {
				v.emitViolation(callee.ID, caller.ToolID,
					fmt.Sprintf("chain %s to %s awaits approval", caller.ToolID, callee.ID),
					stack.chainLocked())
				return "", etdi.WrapError(etdi.KindCallStack, callee.ID, ErrChainApprovalPending)
			}
		}
	}

	h := Handle(uuid.NewString())
	stack.frames = append(stack.frames, Frame{
		ToolID:      callee.ID,
		CallerID:    caller.ToolID,
		Depth:       depth,
		handle:      h,
		constraints: cc,
	})
	v.bus.Publish(events.New(events.ToolInvoked, source, map[string]any{
		"tool_id":   callee.ID,
		"caller_id": caller.ToolID,
		"depth":     depth,
	}))
	v.logger.Debug("call authorized",
		zap.String("tool_id", callee.ID),
		zap.String("caller_id", caller.ToolID),
		zap.Int("depth", depth),
	)
	return h, nil
}

// Exit pops the frame identified by handle. Frames pop in strict LIFO
// order: presenting any handle other than the top frame's is a contract
// violation and leaves the stack unmodified.
func (v *Verifier) Exit(stack *Stack, handle Handle) error {
	stack.mu.Lock()
	defer stack.mu.Unlock()

	top, ok := stack.topLocked()
	if !ok {
		return etdi.NewError(etdi.KindCallStack, "", "exit on an empty stack")
	}
	if top.handle != handle {
		return etdi.NewError(etdi.KindCallStack, top.ToolID, "out-of-order exit: handle does not match the top frame")
	}
	stack.frames = stack.frames[:len(stack.frames)-1]
	v.logger.Debug("call exited", zap.String("tool_id", top.ToolID), zap.Int("depth", top.Depth))
	return nil
}

// Release pops every remaining frame. Cancellation and failure paths call
// it so frames never outlive their request.
func (v *Verifier) Release(stack *Stack) {
	if n := stack.clear(); n > 0 {
		v.logger.Debug("released call stack", zap.Int("frames", n))
	}
}

func (v *Verifier) emitViolation(toolID, callerID, reason string, chain []string) {
	v.bus.Publish(events.NewThreat(events.CallStackViolation, source, "call_chain_abuse", map[string]any{
		"tool_id":   toolID,
		"caller_id": callerID,
		"reason":    reason,
		"chain":     chain,
	}))
	v.logger.Warn("call denied",
		zap.String("tool_id", toolID),
		zap.String("caller_id", callerID),
		zap.String("reason", reason),
	)
}

// policyDeny evaluates the block/allow lists for one (caller, callee) pair
// and returns the denial reason, or "" when the pair passes. Callee-side
// lists are checked before caller-side lists, blocked before allowed.
func policyDeny(caller Frame, calleeID string, cc tooldef.CallConstraints) string {
	if listed(cc.BlockedCallers, caller.ToolID) {
		return fmt.Sprintf("caller %s is blocked by callee policy", caller.ToolID)
	}
	if len(cc.AllowedCallers) > 0 && !listed(cc.AllowedCallers, caller.ToolID) {
		return fmt.Sprintf("caller %s is not an allowed caller", caller.ToolID)
	}
	if listed(caller.constraints.BlockedCallees, calleeID) {
		return fmt.Sprintf("callee %s is blocked by caller policy", calleeID)
	}
	if len(caller.constraints.AllowedCallees) > 0 && !listed(caller.constraints.AllowedCallees, calleeID) {
		return fmt.Sprintf("callee %s is not an allowed callee", calleeID)
	}
	return ""
}

func listed(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func constraintsOf(def *tooldef.ToolDefinition) tooldef.CallConstraints {
	if def.Constraints == nil {
		return tooldef.CallConstraints{}
	}
	return *def.Constraints
}
