package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/loomhq/loom/internal/deps"
	"github.com/loomhq/loom/internal/types"
)

// queryDependenciesArgs is the parameter surface of the query_dependencies tool.
type queryDependenciesArgs struct {
	ItemID          string `json:"itemId"`
	Direction       string `json:"direction,omitempty"`
	Type            string `json:"type,omitempty"`
	IncludeItemInfo bool   `json:"includeItemInfo,omitempty"`
	NeighborsOnly   bool   `json:"neighborsOnly,omitempty"`
	MaxDepth        int    `json:"maxDepth,omitempty"`
}

// ItemSummary is the compact endpoint projection attached to edges when
// includeItemInfo is set.
type ItemSummary struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Role     types.Role     `json:"role"`
	Priority types.Priority `json:"priority"`
}

func summarize(item *types.WorkItem) *ItemSummary {
	if item == nil {
		return nil
	}
	return &ItemSummary{ID: item.ID, Title: item.Title, Role: item.Role, Priority: item.Priority}
}

// EdgeView is a dependency edge plus optional endpoint summaries.
type EdgeView struct {
	*types.Dependency
	FromItem *ItemSummary `json:"fromItem,omitempty"`
	ToItem   *ItemSummary `json:"toItem,omitempty"`
}

// QueryDependencies returns the edges around one item, the item's current
// blockers, and, unless neighborsOnly is set, a topological chain through the
// connected gating subgraph with its layer depth.
func (s *Service) QueryDependencies(ctx context.Context, raw json.RawMessage) *Envelope {
	var args queryDependenciesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}
	id, err := requireUUID("itemId", args.ItemID)
	if err != nil {
		return s.fail(err)
	}
	if _, err := s.store.GetItem(ctx, id); err != nil {
		return s.fail(err)
	}

	direction := strings.ToLower(args.Direction)
	if direction == "" {
		direction = "all"
	}

	var edges []*types.Dependency
	switch direction {
	case "incoming":
		edges, err = s.store.ListDependenciesTo(ctx, id)
	case "outgoing":
		edges, err = s.store.ListDependenciesFrom(ctx, id)
	case "all":
		edges, err = s.store.ListDependenciesForItem(ctx, id)
	default:
		return s.fail(validationf("direction must be one of incoming, outgoing, all (got %q)", args.Direction))
	}
	if err != nil {
		return s.fail(err)
	}

	if args.Type != "" {
		depType := types.DependencyType(strings.ToUpper(args.Type))
		if !depType.IsValid() {
			return s.fail(validationf("type must be one of BLOCKS, IS_BLOCKED_BY, RELATES_TO (got %q)", args.Type))
		}
		filtered := edges[:0]
		for _, e := range edges {
			if e.Type == depType {
				filtered = append(filtered, e)
			}
		}
		edges = filtered
	}

	blockers, err := s.deps.Blockers(ctx, id)
	if err != nil {
		return s.fail(err)
	}

	data := map[string]any{
		"itemId":    id,
		"direction": direction,
		"count":     len(edges),
		"isBlocked": len(blockers) > 0,
		"blockers":  blockers,
	}

	if args.IncludeItemInfo {
		views, err := s.attachEndpoints(ctx, edges)
		if err != nil {
			return s.fail(err)
		}
		data["dependencies"] = views
	} else {
		data["dependencies"] = edges
	}

	if !args.NeighborsOnly {
		chain, depth, err := s.dependencyChain(ctx, id, args.MaxDepth)
		if err != nil {
			return s.fail(err)
		}
		data["chain"] = chain
		data["depth"] = depth
	}

	message := fmt.Sprintf("%d dependencies", len(edges))
	return s.ok(message, data)
}

// attachEndpoints bulk-fetches every endpoint of the edges and wraps each
// edge with from/to summaries.
func (s *Service) attachEndpoints(ctx context.Context, edges []*types.Dependency) ([]EdgeView, error) {
	seen := make(map[string]bool, len(edges)*2)
	var ids []string
	for _, e := range edges {
		for _, end := range []string{e.FromItemID, e.ToItemID} {
			if !seen[end] {
				seen[end] = true
				ids = append(ids, end)
			}
		}
	}
	items, err := s.store.GetItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.WorkItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	views := make([]EdgeView, len(edges))
	for i, e := range edges {
		views[i] = EdgeView{
			Dependency: e,
			FromItem:   summarize(byID[e.FromItemID]),
			ToItem:     summarize(byID[e.ToItemID]),
		}
	}
	return views, nil
}

// dependencyChain discovers the connected component of gating edges around
// itemID with a bounded breadth-first expansion, then peels it with Kahn's
// algorithm. The chain lists ids layer by layer (each layer sorted for
// determinism); depth is the number of layers. Nodes stuck on a residual
// cycle are appended after the ordered portion.
func (s *Service) dependencyChain(ctx context.Context, itemID string, maxDepth int) ([]string, int, error) {
	if maxDepth <= 0 || maxDepth > s.maxChainDepth {
		maxDepth = s.maxChainDepth
	}

	component := map[string]bool{itemID: true}
	frontier := []string{itemID}
	seenEdge := make(map[string]bool)
	var edges []*types.Dependency

	for hop := 0; hop < maxDepth && len(frontier) > 0; hop++ {
		batch, err := s.store.ListDependenciesForItems(ctx, frontier)
		if err != nil {
			return nil, 0, err
		}
		var next []string
		for _, e := range batch {
			if !e.Type.Gates() || seenEdge[e.ID] {
				continue
			}
			seenEdge[e.ID] = true
			edges = append(edges, e)
			for _, end := range []string{e.FromItemID, e.ToItemID} {
				if !component[end] {
					component[end] = true
					next = append(next, end)
				}
			}
		}
		frontier = next
	}

	graph := deps.BuildGraph(edges)
	indegree := make(map[string]int, len(component))
	for id := range component {
		indegree[id] = 0
	}
	for _, targets := range graph {
		for _, to := range targets {
			indegree[to]++
		}
	}

	var layer []string
	for id, n := range indegree {
		if n == 0 {
			layer = append(layer, id)
		}
	}
	sort.Strings(layer)

	var chain []string
	depth := 0
	ordered := make(map[string]bool, len(component))
	for len(layer) > 0 {
		depth++
		chain = append(chain, layer...)
		var next []string
		for _, id := range layer {
			ordered[id] = true
			for _, to := range graph[id] {
				indegree[to]--
				if indegree[to] == 0 && !ordered[to] {
					next = append(next, to)
				}
			}
		}
		sort.Strings(next)
		layer = next
	}

	var residue []string
	for id := range component {
		if !ordered[id] {
			residue = append(residue, id)
		}
	}
	sort.Strings(residue)
	chain = append(chain, residue...)

	return chain, depth, nil
}
