// Package deps provides dependency graph analysis for work items:
// cycle detection over gating edges, blocker classification, and
// unblock-candidate discovery after role changes.
//
// The graph functions in this file are pure: they operate on edge slices
// and never touch storage, so the sqlite layer can call them inside its
// own transactions.
package deps

import (
	"fmt"
	"sort"

	"github.com/loomhq/loom/internal/types"
)

// MaxChainDepth caps dependency chain traversal. Chains longer than this
// are truncated rather than followed to exhaustion.
const MaxChainDepth = 50

// Graph is a normalized adjacency over gating edges, keyed blocker → gated.
// RELATES_TO edges never appear in it.
type Graph map[string][]string

// BuildGraph normalizes gating edges into a blocker → gated adjacency.
// IS_BLOCKED_BY edges are reversed so both spellings land in one direction.
func BuildGraph(edges []*types.Dependency) Graph {
	g := make(Graph)
	for _, e := range edges {
		if !e.Type.Gates() {
			continue
		}
		blocker, gated := e.BlockerID()
		g[blocker] = append(g[blocker], gated)
	}
	return g
}

// DetectCycle runs a three-colour depth-first search over the adjacency and
// returns one cycle as an id path (first and last id equal), or nil when the
// graph is acyclic. Starting nodes are visited in sorted order so the result
// is deterministic for a given edge set.
func DetectCycle(g Graph) []string {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current DFS stack
		black = 2 // fully explored
	)
	colour := make(map[string]int, len(g))

	starts := make([]string, 0, len(g))
	for id := range g {
		starts = append(starts, id)
	}
	sort.Strings(starts)

	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colour[id] = grey
		stack = append(stack, id)
		for _, next := range g[id] {
			switch colour[next] {
			case grey:
				// Found a back edge; slice the stack from the first
				// occurrence of next to get the cycle path.
				for i, v := range stack {
					if v == next {
						cycle = append(append([]string{}, stack[i:]...), next)
						return true
					}
				}
				cycle = []string{next, next}
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[id] = black
		return false
	}

	for _, id := range starts {
		if colour[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// WouldCycle reports whether adding the candidate edges to the existing set
// closes a cycle through gating edges, returning the offending path.
func WouldCycle(existing, candidates []*types.Dependency) []string {
	combined := make([]*types.Dependency, 0, len(existing)+len(candidates))
	combined = append(combined, existing...)
	combined = append(combined, candidates...)
	return DetectCycle(BuildGraph(combined))
}

// ValidateBatch checks every candidate edge structurally and rejects
// duplicate (from, to, type) triples within the batch itself. Duplicates
// against stored edges are the storage layer's job.
func ValidateBatch(deps []*types.Dependency) error {
	seen := make(map[string]bool, len(deps))
	for i, d := range deps {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("dependency %d: %w", i, err)
		}
		key := d.FromItemID + "\x00" + d.ToItemID + "\x00" + string(d.Type)
		if seen[key] {
			return fmt.Errorf("duplicate dependency within batch: %s %s %s", d.FromItemID, d.Type, d.ToItemID)
		}
		seen[key] = true
	}
	return nil
}

// Chain is one path through the gating graph starting at the queried item.
type Chain []string

// ChainsFrom enumerates paths through the adjacency starting at id, depth
// bounded by maxDepth (values above MaxChainDepth are clamped). Each leaf or
// depth-capped path yields one chain beginning with id. Visited tracking is
// per-path, so diamond shapes produce one chain per distinct route.
func ChainsFrom(g Graph, id string, maxDepth int) []Chain {
	if maxDepth <= 0 || maxDepth > MaxChainDepth {
		maxDepth = MaxChainDepth
	}

	var chains []Chain
	path := []string{id}
	onPath := map[string]bool{id: true}

	var walk func(cur string, depth int)
	walk = func(cur string, depth int) {
		next := g[cur]
		if depth >= maxDepth || len(next) == 0 {
			chains = append(chains, append(Chain{}, path...))
			return
		}
		extended := false
		for _, n := range next {
			if onPath[n] {
				continue // revisiting a node on this path would loop forever
			}
			extended = true
			path = append(path, n)
			onPath[n] = true
			walk(n, depth+1)
			onPath[n] = false
			path = path[:len(path)-1]
		}
		if !extended {
			chains = append(chains, append(Chain{}, path...))
		}
	}

	walk(id, 0)
	return chains
}
