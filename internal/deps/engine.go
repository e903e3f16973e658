package deps

import (
	"context"
	"fmt"
	"sort"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

// Engine answers role-aware blocking questions over the dependency graph.
// It fetches edges and blocker items from storage and delegates the actual
// classification to the pure helpers below.
type Engine struct {
	store storage.Storage
}

// NewEngine returns an Engine backed by the given store.
func NewEngine(store storage.Storage) *Engine {
	return &Engine{store: store}
}

// UnsatisfiedEdges classifies the gating edges against the blockers' current
// roles and returns, per gated item id, the edges whose blocker has not
// reached the effective unblock role. RELATES_TO edges and edges whose
// blocker row is absent from itemsByID are ignored.
func UnsatisfiedEdges(edges []*types.Dependency, itemsByID map[string]*types.WorkItem) map[string][]types.Blocker {
	out := make(map[string][]types.Blocker)
	for _, e := range edges {
		required, ok := e.EffectiveUnblockRole()
		if !ok {
			continue
		}
		blockerID, gatedID := e.BlockerID()
		blocker, ok := itemsByID[blockerID]
		if !ok {
			continue
		}
		if blocker.Role.AtOrBeyond(required) {
			continue
		}
		out[gatedID] = append(out[gatedID], types.Blocker{
			FromItemID:   blockerID,
			Role:         blocker.Role,
			RequiredRole: required,
		})
	}
	return out
}

// gatingEdgesOn filters edges down to those that gate itemID.
func gatingEdgesOn(edges []*types.Dependency, itemID string) []*types.Dependency {
	var out []*types.Dependency
	for _, e := range edges {
		if !e.Type.Gates() {
			continue
		}
		if _, gated := e.BlockerID(); gated == itemID {
			out = append(out, e)
		}
	}
	return out
}

// blockerIDs collects the distinct blocker-side ids of the gating edges.
func blockerIDs(edges []*types.Dependency) []string {
	seen := make(map[string]bool, len(edges))
	var ids []string
	for _, e := range edges {
		if !e.Type.Gates() {
			continue
		}
		blocker, _ := e.BlockerID()
		if !seen[blocker] {
			seen[blocker] = true
			ids = append(ids, blocker)
		}
	}
	return ids
}

// Blockers returns the unsatisfied gating edges on the item as blocker
// tuples. An empty result means the item is free to progress as far as the
// dependency graph is concerned.
func (e *Engine) Blockers(ctx context.Context, itemID string) ([]types.Blocker, error) {
	edges, err := e.store.ListDependenciesForItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	gating := gatingEdgesOn(edges, itemID)
	if len(gating) == 0 {
		return nil, nil
	}
	blockers, err := e.store.GetItemsByIDs(ctx, blockerIDs(gating))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blocker items: %w", err)
	}
	return UnsatisfiedEdges(gating, itemsByID(blockers))[itemID], nil
}

// IsBlocked reports whether the item has at least one unsatisfied gating
// edge. It does not consider the item's own role; an explicitly blocked item
// with no dependencies reports false here.
func (e *Engine) IsBlocked(ctx context.Context, itemID string) (bool, error) {
	blockers, err := e.Blockers(ctx, itemID)
	if err != nil {
		return false, err
	}
	return len(blockers) > 0, nil
}

// FilterUnblocked returns the subset of items with no unsatisfied gating
// edges, preserving input order. Edges and blockers are fetched in bulk so
// the candidate set costs two queries regardless of size.
func (e *Engine) FilterUnblocked(ctx context.Context, items []*types.WorkItem) ([]*types.WorkItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	edges, err := e.store.ListDependenciesForItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	var gating []*types.Dependency
	for _, edge := range edges {
		if edge.Type.Gates() {
			gating = append(gating, edge)
		}
	}
	blockers, err := e.store.GetItemsByIDs(ctx, blockerIDs(gating))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blocker items: %w", err)
	}
	unsatisfied := UnsatisfiedEdges(gating, itemsByID(blockers))
	out := make([]*types.WorkItem, 0, len(items))
	for _, it := range items {
		if len(unsatisfied[it.ID]) == 0 {
			out = append(out, it)
		}
	}
	return out, nil
}

// ListBlocked returns every item that cannot progress: items explicitly in
// the blocked role, plus items in a productive pre-terminal role held back
// by at least one unsatisfied dependency. Explicit entries come first.
func (e *Engine) ListBlocked(ctx context.Context) ([]*types.BlockedItem, error) {
	edges, err := e.store.ListGatingEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list gating edges: %w", err)
	}

	ids := make(map[string]bool)
	for _, edge := range edges {
		ids[edge.FromItemID] = true
		ids[edge.ToItemID] = true
	}
	involved, err := e.store.GetItemsByIDs(ctx, mapKeys(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch edge endpoints: %w", err)
	}
	byID := itemsByID(involved)
	unsatisfied := UnsatisfiedEdges(edges, byID)

	blocked := types.RoleBlocked
	explicit, err := e.store.ListItems(ctx, types.ItemFilter{
		Role:      &blocked,
		SortBy:    types.SortByCreated,
		SortOrder: types.SortAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list explicitly blocked items: %w", err)
	}

	var out []*types.BlockedItem
	for _, it := range explicit {
		out = append(out, &types.BlockedItem{
			Item:      it,
			BlockType: types.BlockTypeExplicit,
			Blockers:  unsatisfied[it.ID],
		})
	}

	var depBlocked []*types.WorkItem
	for id, blockers := range unsatisfied {
		if len(blockers) == 0 {
			continue
		}
		it, ok := byID[id]
		if !ok || it.Role == types.RoleBlocked || it.Role == types.RoleTerminal {
			continue
		}
		depBlocked = append(depBlocked, it)
	}
	sort.Slice(depBlocked, func(i, j int) bool {
		if !depBlocked[i].CreatedAt.Equal(depBlocked[j].CreatedAt) {
			return depBlocked[i].CreatedAt.Before(depBlocked[j].CreatedAt)
		}
		return depBlocked[i].ID < depBlocked[j].ID
	})
	for _, it := range depBlocked {
		out = append(out, &types.BlockedItem{
			Item:      it,
			BlockType: types.BlockTypeDependency,
			Blockers:  unsatisfied[it.ID],
		})
	}
	return out, nil
}

// NewlyUnblocked returns the items gated by itemID whose entire blocking set
// is now satisfied. The report is advisory: callers surface it so a human or
// agent can resume the items, nothing is mutated here. Terminal items are
// omitted since they have nothing left to unblock.
func (e *Engine) NewlyUnblocked(ctx context.Context, itemID string) ([]*types.WorkItem, error) {
	edges, err := e.store.ListDependenciesForItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}

	seen := make(map[string]bool)
	var dependents []string
	for _, edge := range edges {
		if !edge.Type.Gates() {
			continue
		}
		blocker, gated := edge.BlockerID()
		if blocker != itemID || seen[gated] {
			continue
		}
		seen[gated] = true
		dependents = append(dependents, gated)
	}
	if len(dependents) == 0 {
		return nil, nil
	}
	sort.Strings(dependents)

	depEdges, err := e.store.ListDependenciesForItems(ctx, dependents)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependent edges: %w", err)
	}
	var gating []*types.Dependency
	for _, edge := range depEdges {
		if !edge.Type.Gates() {
			continue
		}
		if _, gated := edge.BlockerID(); seen[gated] {
			gating = append(gating, edge)
		}
	}

	// One bulk fetch covers both the dependents themselves and every
	// blocker that still gates them.
	fetch := append(blockerIDs(gating), dependents...)
	items, err := e.store.GetItemsByIDs(ctx, fetch)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch items: %w", err)
	}
	byID := itemsByID(items)
	unsatisfied := UnsatisfiedEdges(gating, byID)

	var out []*types.WorkItem
	for _, id := range dependents {
		it, ok := byID[id]
		if !ok || it.Role == types.RoleTerminal {
			continue
		}
		if len(unsatisfied[id]) == 0 {
			out = append(out, it)
		}
	}
	return out, nil
}

func itemsByID(items []*types.WorkItem) map[string]*types.WorkItem {
	m := make(map[string]*types.WorkItem, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}

func mapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
