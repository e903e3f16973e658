package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/types"
)

// Tree completion outcome labels.
const (
	treeOutcomeCompleted = "completed"
	treeOutcomeSkipped   = "skipped"
	treeOutcomeFailed    = "failed"
)

// Skip reasons surfaced per element.
const (
	reasonAlreadyTerminal    = "already terminal"
	reasonCompletedByCascade = "completed by cascade"
	reasonDepGateFailed      = "dependency gate failed"
	reasonDepFailed          = "dependency failed to complete"
)

// completeTreeArgs is the parameter surface of the complete_tree tool.
type completeTreeArgs struct {
	RootID  string   `json:"rootId,omitempty"`
	ItemIDs []string `json:"itemIds,omitempty"`
	Trigger string   `json:"trigger,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// TreeCompletionResult is the per-element outcome of a tree sweep.
type TreeCompletionResult struct {
	ItemID  string          `json:"itemId"`
	Title   string          `json:"title,omitempty"`
	Outcome string          `json:"outcome"`
	Reason  string          `json:"reason,omitempty"`
	Item    *types.WorkItem `json:"item,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// TreeSummary totals the outcomes of a sweep. Gate failures count inside
// failed as well; they get their own tally because dependents skip on them.
type TreeSummary struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	Skipped      int `json:"skipped"`
	GateFailures int `json:"gateFailures"`
}

// CompleteTree sweeps a whole subtree (or an explicit item set) to terminal
// in dependency order: blockers before the items they gate, children before
// parents. Items whose predecessor failed are skipped rather than attempted,
// and items already terminal are reported without error.
func (s *Service) CompleteTree(ctx context.Context, raw json.RawMessage) *Envelope {
	var args completeTreeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}

	trigger := types.Trigger(strings.ToLower(strings.TrimSpace(args.Trigger)))
	if trigger == "" {
		trigger = types.TriggerComplete
	}
	if trigger != types.TriggerComplete && trigger != types.TriggerCancel {
		return s.fail(validationf("trigger must be complete or cancel (got %q)", args.Trigger))
	}

	targets, missing, err := s.treeTargets(ctx, &args)
	if err != nil {
		return s.fail(err)
	}
	if len(targets) == 0 && len(missing) == 0 {
		return s.fail(validationf("rootId or itemIds is required"))
	}

	order, preds, err := s.completionOrder(ctx, targets)
	if err != nil {
		return s.fail(err)
	}

	byID := make(map[string]*types.WorkItem, len(targets))
	for _, it := range targets {
		byID[it.ID] = it
	}

	summary := TreeSummary{Total: len(targets) + len(missing)}
	results := make([]TreeCompletionResult, 0, summary.Total)
	for _, id := range missing {
		results = append(results, TreeCompletionResult{
			ItemID:  id,
			Outcome: treeOutcomeFailed,
			Error:   &ErrorBody{Message: fmt.Sprintf("item not found: %s", id), Code: CodeNotFound},
		})
	}

	// satisfied marks items whose terminal state dependents can rely on;
	// tainted carries the skip reason down to dependents of a failure.
	satisfied := make(map[string]bool, len(order))
	cascaded := make(map[string]bool)
	tainted := make(map[string]string)
	var allCascades []CascadeEvent
	var allUnblocked []*types.WorkItem
	seenUnblocked := make(map[string]bool)

	taint := func(id, reason string) {
		for _, succ := range preds.successors[id] {
			if _, already := tainted[succ]; !already {
				tainted[succ] = reason
			}
		}
	}

	for _, id := range order {
		result := TreeCompletionResult{ItemID: id}
		if it := byID[id]; it != nil {
			result.Title = it.Title
		}

		// Cascades fired by earlier elements may have moved this item
		// already; judge from the current row, not the snapshot.
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			result.Outcome = treeOutcomeFailed
			result.Error = errorBody(err)
			results = append(results, result)
			taint(id, reasonDepFailed)
			continue
		}

		switch {
		case item.Role == types.RoleTerminal && cascaded[id]:
			satisfied[id] = true
			result.Outcome = treeOutcomeCompleted
			result.Reason = reasonCompletedByCascade
			result.Item = item
			summary.Completed++

		case item.Role == types.RoleTerminal:
			satisfied[id] = true
			result.Outcome = treeOutcomeSkipped
			result.Reason = reasonAlreadyTerminal
			result.Item = item
			summary.Skipped++

		case tainted[id] != "":
			result.Outcome = treeOutcomeSkipped
			result.Reason = tainted[id]
			summary.Skipped++
			taint(id, tainted[id])

		default:
			gate, _, hasReview := s.noteGateFor(ctx, item, trigger)
			res, err := s.workflow.Advance(ctx, item, trigger, args.Summary, hasReview, gate)
			if err != nil {
				result.Outcome = treeOutcomeFailed
				result.Error = errorBody(err)
				var gerr *GateError
				if errors.As(err, &gerr) {
					summary.GateFailures++
					taint(id, reasonDepGateFailed)
				} else {
					taint(id, reasonDepFailed)
				}
				break
			}
			satisfied[id] = true
			result.Outcome = treeOutcomeCompleted
			result.Item = res.Item
			summary.Completed++
			for _, ev := range res.Cascaded {
				if _, inSet := byID[ev.Item.ID]; inSet {
					cascaded[ev.Item.ID] = true
				}
				allCascades = append(allCascades, CascadeEvent{
					ItemID:       ev.Item.ID,
					Title:        ev.Item.Title,
					PreviousRole: ev.From,
					TargetRole:   ev.Item.Role,
					Trigger:      types.TriggerCascade,
				})
			}
			for _, it := range res.Unblocked {
				if !seenUnblocked[it.ID] {
					seenUnblocked[it.ID] = true
					allUnblocked = append(allUnblocked, it)
				}
			}
		}

		results = append(results, result)
	}

	data := map[string]any{
		"results": results,
		"summary": summary,
	}
	if len(allCascades) > 0 {
		data["cascadeEvents"] = allCascades
	}
	if len(allUnblocked) > 0 {
		data["allUnblockedItems"] = allUnblocked
	}

	s.log.Info("tree sweep finished",
		zap.String("trigger", string(trigger)),
		zap.Int("total", summary.Total),
		zap.Int("completed", summary.Completed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("gate_failures", summary.GateFailures))
	message := fmt.Sprintf("completed %d of %d item(s)", summary.Completed, summary.Total)
	return s.ok(message, data)
}

// treeTargets resolves the sweep's item set: a root with its whole subtree,
// or an explicit id list. For the id list, unknown ids are reported back
// rather than dropped.
func (s *Service) treeTargets(ctx context.Context, args *completeTreeArgs) ([]*types.WorkItem, []string, error) {
	switch {
	case args.RootID != "" && len(args.ItemIDs) > 0:
		return nil, nil, validationf("rootId and itemIds are mutually exclusive")

	case args.RootID != "":
		id, err := requireUUID("rootId", args.RootID)
		if err != nil {
			return nil, nil, err
		}
		root, err := s.store.GetItem(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		descendants, err := s.store.ListDescendants(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return append([]*types.WorkItem{root}, descendants...), nil, nil

	case len(args.ItemIDs) > 0:
		ids := make([]string, 0, len(args.ItemIDs))
		for i, rawID := range args.ItemIDs {
			id, err := requireUUID(fmt.Sprintf("itemIds[%d]", i), rawID)
			if err != nil {
				return nil, nil, err
			}
			ids = append(ids, id)
		}
		items, err := s.store.GetItemsByIDs(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		found := make(map[string]bool, len(items))
		for _, it := range items {
			found[it.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return items, missing, nil

	default:
		return nil, nil, nil
	}
}

// orderEdges is the precedence structure of a sweep: successors[x] lists the
// items that must wait for x.
type orderEdges struct {
	successors map[string][]string
}

// completionOrder topologically sorts the target set. Precedence combines
// gating dependency edges between set members (blocker first) with tree
// edges (child before parent). Kahn layers keep the result deterministic;
// members of a residual cycle are appended after the ordered portion so the
// sweep still visits them and reports their failure.
func (s *Service) completionOrder(ctx context.Context, targets []*types.WorkItem) ([]string, *orderEdges, error) {
	inSet := make(map[string]bool, len(targets))
	ids := make([]string, 0, len(targets))
	for _, it := range targets {
		inSet[it.ID] = true
		ids = append(ids, it.ID)
	}

	edges := &orderEdges{successors: make(map[string][]string)}
	indegree := make(map[string]int, len(targets))
	for _, id := range ids {
		indegree[id] = 0
	}
	addEdge := func(before, after string) {
		edges.successors[before] = append(edges.successors[before], after)
		indegree[after]++
	}

	stored, err := s.store.ListDependenciesForItems(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	seenEdge := make(map[string]bool, len(stored))
	for _, e := range stored {
		if !e.Type.Gates() || seenEdge[e.ID] {
			continue
		}
		seenEdge[e.ID] = true
		blocker, gated := e.BlockerID()
		if inSet[blocker] && inSet[gated] {
			addEdge(blocker, gated)
		}
	}
	for _, it := range targets {
		if it.ParentID != nil && inSet[*it.ParentID] {
			addEdge(it.ID, *it.ParentID)
		}
	}

	var layer []string
	for id, n := range indegree {
		if n == 0 {
			layer = append(layer, id)
		}
	}
	sort.Strings(layer)

	order := make([]string, 0, len(targets))
	placed := make(map[string]bool, len(targets))
	for len(layer) > 0 {
		order = append(order, layer...)
		var next []string
		for _, id := range layer {
			placed[id] = true
			for _, succ := range edges.successors[id] {
				indegree[succ]--
				if indegree[succ] == 0 && !placed[succ] {
					next = append(next, succ)
				}
			}
		}
		sort.Strings(next)
		layer = next
	}

	var residue []string
	for _, id := range ids {
		if !placed[id] {
			residue = append(residue, id)
		}
	}
	sort.Strings(residue)
	order = append(order, residue...)

	return order, edges, nil
}
