package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/deps"
	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

// Engine applies resolved transitions against storage. One engine serves
// the whole process; all state lives in the store.
type Engine struct {
	store storage.Storage
	deps  *deps.Engine
	log   *zap.Logger

	// MaxCascadeDepth bounds upward cascade traversal per advance.
	MaxCascadeDepth int
}

// NewEngine returns a workflow engine over the given store.
func NewEngine(store storage.Storage, depEngine *deps.Engine, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:           store,
		deps:            depEngine,
		log:             log,
		MaxCascadeDepth: DefaultMaxCascadeDepth,
	}
}

// Result reports everything a single advance did: the updated item, the
// role it left, ancestors that cascade-completed, and items whose blocking
// set is now satisfied.
type Result struct {
	Item      *types.WorkItem
	From      types.Role
	Cascaded  []CascadeEvent
	Unblocked []*types.WorkItem
}

// CascadeEvent records one automatic parent completion: the updated
// ancestor plus the role it held before the cascade fired.
type CascadeEvent struct {
	Item *types.WorkItem
	From types.Role
}

// ValidateTransition checks the dependency graph against the resolved
// target. Moving into blocked and resuming out of it skip the check; any
// other forward move requires every gating edge on the item to be
// satisfied, otherwise a *BlockedError carries the offending tuples.
func (e *Engine) ValidateTransition(ctx context.Context, item *types.WorkItem, res *Resolution) error {
	if res.Target == types.RoleBlocked || res.ViaResume {
		return nil
	}
	switch res.Target {
	case types.RoleWork, types.RoleReview, types.RoleTerminal:
	default:
		return nil
	}
	blockers, err := e.deps.Blockers(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to evaluate blockers: %w", err)
	}
	if len(blockers) > 0 {
		return &BlockedError{Blockers: blockers}
	}
	return nil
}

// ApplyTransition persists the transition: one transaction updates the item
// under its optimistic version and appends the audit record. A version
// conflict surfaces as storage.ErrConflict for the caller to retry or
// report; the engine never retries.
func (e *Engine) ApplyTransition(ctx context.Context, item *types.WorkItem, res *Resolution, trigger types.Trigger, summary string) (*types.WorkItem, error) {
	now := time.Now().UTC()

	patch := &types.ItemUpdate{
		Role:          &res.Target,
		RoleChangedAt: &now,
	}
	if res.StatusLabel != "" {
		patch.StatusLabel = &res.StatusLabel
	}
	if res.Target == types.RoleBlocked {
		prev := item.Role
		patch.PreviousRole = &prev
	} else if item.Role == types.RoleBlocked {
		patch.ClearPreviousRole = true
	}

	var updated *types.WorkItem
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		updated, err = tx.UpdateItem(ctx, item.ID, item.Version, patch)
		if err != nil {
			return err
		}
		return tx.AppendTransition(ctx, &types.RoleTransition{
			ItemID:      item.ID,
			FromRole:    item.Role,
			ToRole:      res.Target,
			Trigger:     trigger,
			Summary:     summary,
			StatusLabel: res.StatusLabel,
			OccurredAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GateFunc checks caller-level preconditions after dependency validation and
// before anything is persisted. The tool layer supplies note-schema gates
// through it; the engine itself stays schema-agnostic.
type GateFunc func(item *types.WorkItem, res *Resolution) error

// Advance runs the full transition pipeline for one item: resolve the
// trigger, validate dependencies, run the gate when one is supplied, apply,
// then propagate cascades and report unblocked items. Cascade and unblock
// failures degrade to log entries; the applied transition stands.
func (e *Engine) Advance(ctx context.Context, item *types.WorkItem, trigger types.Trigger, summary string, hasReviewPhase bool, gate GateFunc) (*Result, error) {
	res, err := ResolveTransition(item, trigger, hasReviewPhase)
	if err != nil {
		return nil, err
	}
	if err := e.ValidateTransition(ctx, item, res); err != nil {
		return nil, err
	}
	if gate != nil {
		if err := gate(item, res); err != nil {
			return nil, err
		}
	}
	updated, err := e.ApplyTransition(ctx, item, res, trigger, summary)
	if err != nil {
		return nil, err
	}

	result := &Result{Item: updated, From: item.Role}

	if updated.Role == types.RoleTerminal && updated.ParentID != nil {
		cascaded, err := e.cascadeFrom(ctx, *updated.ParentID)
		if err != nil {
			e.log.Warn("cascade propagation stopped",
				zap.String("item_id", updated.ID),
				zap.Error(err))
		}
		result.Cascaded = cascaded
	}

	result.Unblocked = e.collectUnblocked(ctx, updated, result.Cascaded)
	return result, nil
}

// cascadeFrom walks the parent chain starting at parentID. Each iteration
// re-reads the ancestor, so a cascade applied lower down is visible before
// the next eligibility check. Only the first eligible ancestor per
// iteration is completed; deeper completions come from the next loop turn.
func (e *Engine) cascadeFrom(ctx context.Context, parentID string) ([]CascadeEvent, error) {
	var completed []CascadeEvent
	next := &parentID

	for depth := 0; next != nil && depth < e.MaxCascadeDepth; depth++ {
		parent, err := e.store.GetItem(ctx, *next)
		if err != nil {
			return completed, fmt.Errorf("failed to fetch ancestor: %w", err)
		}
		if parent.Role == types.RoleTerminal {
			next = parent.ParentID
			continue
		}

		counts, err := e.store.CountChildrenByRole(ctx, parent.ID)
		if err != nil {
			return completed, fmt.Errorf("failed to count children: %w", err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		if total == 0 || counts[types.RoleTerminal] != total {
			break
		}

		res := &Resolution{Target: types.RoleTerminal}
		updated, err := e.ApplyTransition(ctx, parent, res, types.TriggerCascade, "auto-completed: all children terminal")
		if err != nil {
			// A concurrent writer got here first; the chain is theirs now.
			return completed, fmt.Errorf("failed to cascade %s: %w", parent.ID, err)
		}
		completed = append(completed, CascadeEvent{Item: updated, From: parent.Role})
		next = updated.ParentID
	}
	return completed, nil
}

// collectUnblocked merges advisory unblock reports for the transitioned
// item and every cascaded ancestor, de-duplicated by id.
func (e *Engine) collectUnblocked(ctx context.Context, item *types.WorkItem, cascaded []CascadeEvent) []*types.WorkItem {
	sources := []*types.WorkItem{item}
	for _, ev := range cascaded {
		sources = append(sources, ev.Item)
	}
	seen := make(map[string]bool)
	var out []*types.WorkItem

	for _, src := range sources {
		unblocked, err := e.deps.NewlyUnblocked(ctx, src.ID)
		if err != nil {
			e.log.Warn("unblock detection failed",
				zap.String("item_id", src.ID),
				zap.Error(err))
			continue
		}
		for _, it := range unblocked {
			if !seen[it.ID] {
				seen[it.ID] = true
				out = append(out, it)
			}
		}
	}
	return out
}
