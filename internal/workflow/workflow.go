// Package workflow drives the work-item role lifecycle: trigger resolution,
// dependency validation, transactional application with audit records,
// upward cascade completion and advisory unblock reporting.
//
// Note-schema gates are deliberately not evaluated here; they belong to the
// tool handlers, which know how to render missing keys back to the caller.
package workflow

import (
	"fmt"
	"strings"

	"github.com/loomhq/loom/internal/types"
)

// DefaultMaxCascadeDepth bounds how far a completion propagates up the
// parent chain in one advance.
const DefaultMaxCascadeDepth = 16

// Resolution is the outcome of resolving a trigger against an item's role:
// the role to move to, an optional status label, and whether the transition
// re-enters the role held before blocking (which skips dependency checks).
type Resolution struct {
	Target      types.Role
	StatusLabel string
	ViaResume   bool
}

// ResolutionError reports a trigger that does not apply to the item's
// current role.
type ResolutionError struct {
	Role    types.Role
	Trigger types.Trigger
	Reason  string
}

func (e *ResolutionError) Error() string {
	return e.Reason
}

// BlockedError reports the unsatisfied dependencies preventing a transition.
type BlockedError struct {
	Blockers []types.Blocker
}

func (e *BlockedError) Error() string {
	parts := make([]string, len(e.Blockers))
	for i, b := range e.Blockers {
		parts[i] = fmt.Sprintf("%s is %s, needs %s", b.FromItemID, b.Role, b.RequiredRole)
	}
	return "transition blocked: " + strings.Join(parts, "; ")
}

const cancelledLabel = "cancelled"

// ResolveTransition maps (current role, trigger) to a Resolution.
// hasReviewPhase decides whether starting work finishes in review or jumps
// straight to terminal; it comes from the item's note schema. The cascade
// trigger is reserved for the engine's own parent-completion path and is
// rejected here.
func ResolveTransition(item *types.WorkItem, trigger types.Trigger, hasReviewPhase bool) (*Resolution, error) {
	fail := func(format string, args ...any) (*Resolution, error) {
		return nil, &ResolutionError{
			Role:    item.Role,
			Trigger: trigger,
			Reason:  fmt.Sprintf(format, args...),
		}
	}

	if !trigger.IsValid() {
		return fail("unknown trigger: %s", trigger)
	}
	if trigger == types.TriggerCascade {
		return fail("trigger %s is applied internally and cannot be requested", trigger)
	}

	switch item.Role {
	case types.RoleQueue, types.RoleWork, types.RoleReview:
		switch trigger {
		case types.TriggerStart:
			return &Resolution{Target: startTarget(item.Role, hasReviewPhase)}, nil
		case types.TriggerComplete:
			return &Resolution{Target: types.RoleTerminal}, nil
		case types.TriggerBlock, types.TriggerHold:
			return &Resolution{Target: types.RoleBlocked}, nil
		case types.TriggerCancel:
			return &Resolution{Target: types.RoleTerminal, StatusLabel: cancelledLabel}, nil
		case types.TriggerResume:
			return fail("trigger %s does not apply to role %s", trigger, item.Role)
		}

	case types.RoleTerminal:
		if trigger == types.TriggerStart {
			return fail("item is already terminal")
		}
		return fail("trigger %s does not apply to role %s", trigger, item.Role)

	case types.RoleBlocked:
		switch trigger {
		case types.TriggerComplete:
			return &Resolution{Target: types.RoleTerminal}, nil
		case types.TriggerResume:
			if item.PreviousRole == nil {
				return fail("cannot resume: no previous role recorded")
			}
			return &Resolution{Target: *item.PreviousRole, ViaResume: true}, nil
		case types.TriggerCancel:
			return &Resolution{Target: types.RoleTerminal, StatusLabel: cancelledLabel}, nil
		default:
			return fail("trigger %s does not apply to role %s", trigger, item.Role)
		}
	}

	return fail("trigger %s does not apply to role %s", trigger, item.Role)
}

// startTarget resolves where start lands from a productive role.
func startTarget(current types.Role, hasReviewPhase bool) types.Role {
	switch current {
	case types.RoleQueue:
		return types.RoleWork
	case types.RoleWork:
		if hasReviewPhase {
			return types.RoleReview
		}
		return types.RoleTerminal
	default: // review
		return types.RoleTerminal
	}
}
