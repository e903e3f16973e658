package deps

import (
	"strings"
	"testing"

	"github.com/loomhq/loom/internal/types"
)

func edge(from, to string, depType types.DependencyType) *types.Dependency {
	return &types.Dependency{
		ID:         from + "-" + to,
		FromItemID: from,
		ToItemID:   to,
		Type:       depType,
	}
}

func TestBuildGraphNormalizesDirection(t *testing.T) {
	edges := []*types.Dependency{
		edge("a", "b", types.DepBlocks),      // a gates b
		edge("c", "a", types.DepIsBlockedBy), // a gates c
		edge("a", "d", types.DepRelatesTo),   // ignored
	}
	g := BuildGraph(edges)

	if len(g["a"]) != 2 {
		t.Fatalf("expected a to gate 2 items, got %v", g["a"])
	}
	gated := map[string]bool{g["a"][0]: true, g["a"][1]: true}
	if !gated["b"] || !gated["c"] {
		t.Errorf("a should gate b and c, got %v", g["a"])
	}
	if len(g["d"]) != 0 {
		t.Errorf("RELATES_TO leaked into the graph: %v", g["d"])
	}
}

func TestDetectCycle(t *testing.T) {
	tests := []struct {
		name  string
		graph Graph
		want  []string // nil means acyclic
	}{
		{
			name:  "empty graph",
			graph: Graph{},
		},
		{
			name:  "linear chain",
			graph: Graph{"a": {"b"}, "b": {"c"}},
		},
		{
			name:  "diamond is acyclic",
			graph: Graph{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}},
		},
		{
			name:  "triangle",
			graph: Graph{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			want:  []string{"a", "b", "c", "a"},
		},
		{
			name:  "two-node loop",
			graph: Graph{"x": {"y"}, "y": {"x"}},
			want:  []string{"x", "y", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectCycle(tt.graph)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected acyclic, found cycle %v", got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("cycle %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("cycle %v, want %v", got, tt.want)
				}
			}
			if got[0] != got[len(got)-1] {
				t.Errorf("cycle path must close on itself: %v", got)
			}
		})
	}
}

func TestWouldCycle(t *testing.T) {
	existing := []*types.Dependency{
		edge("a", "b", types.DepBlocks),
		edge("b", "c", types.DepBlocks),
	}

	if path := WouldCycle(existing, []*types.Dependency{edge("c", "d", types.DepBlocks)}); path != nil {
		t.Errorf("extending the chain reported a cycle: %v", path)
	}
	if path := WouldCycle(existing, []*types.Dependency{edge("c", "a", types.DepBlocks)}); path == nil {
		t.Error("closing the chain not detected")
	}
	// The reversed spelling closes the same loop.
	if path := WouldCycle(existing, []*types.Dependency{edge("a", "c", types.DepIsBlockedBy)}); path == nil {
		t.Error("IS_BLOCKED_BY back edge not detected")
	}
	if path := WouldCycle(existing, []*types.Dependency{edge("c", "a", types.DepRelatesTo)}); path != nil {
		t.Errorf("RELATES_TO back edge reported a cycle: %v", path)
	}

	// A batch can be cyclic all by itself.
	batch := []*types.Dependency{
		edge("x", "y", types.DepBlocks),
		edge("y", "x", types.DepBlocks),
	}
	if path := WouldCycle(nil, batch); path == nil {
		t.Error("intra-batch cycle not detected")
	}
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name   string
		deps   []*types.Dependency
		errMsg string
	}{
		{
			name: "valid batch",
			deps: []*types.Dependency{
				edge("a", "b", types.DepBlocks),
				edge("a", "b", types.DepRelatesTo), // same endpoints, different type
				edge("b", "c", types.DepIsBlockedBy),
			},
		},
		{
			name:   "self reference",
			deps:   []*types.Dependency{edge("a", "a", types.DepBlocks)},
			errMsg: "cannot reference itself",
		},
		{
			name: "duplicate triple within batch",
			deps: []*types.Dependency{
				edge("a", "b", types.DepBlocks),
				edge("a", "b", types.DepBlocks),
			},
			errMsg: "duplicate dependency within batch",
		},
		{
			name: "threshold on RELATES_TO",
			deps: func() []*types.Dependency {
				d := edge("a", "b", types.DepRelatesTo)
				r := types.RoleWork
				d.UnblockAt = &r
				return []*types.Dependency{d}
			}(),
			errMsg: "cannot carry an unblockAt threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatch(tt.deps)
			if tt.errMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestChainsFrom(t *testing.T) {
	g := Graph{
		"a": {"b"},
		"b": {"c", "d"},
		"d": {"e"},
	}

	chains := ChainsFrom(g, "a", 0)
	if len(chains) != 2 {
		t.Fatalf("expected 2 chains, got %d: %v", len(chains), chains)
	}
	want := map[string]bool{"a b c": true, "a b d e": true}
	for _, c := range chains {
		key := strings.Join(c, " ")
		if !want[key] {
			t.Errorf("unexpected chain %q", key)
		}
	}
}

func TestChainsFromDepthClamp(t *testing.T) {
	// A long chain a0 -> a1 -> ... -> a9, walked with maxDepth 3.
	g := Graph{}
	ids := []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9"}
	for i := 0; i < len(ids)-1; i++ {
		g[ids[i]] = []string{ids[i+1]}
	}

	chains := ChainsFrom(g, "a0", 3)
	if len(chains) != 1 {
		t.Fatalf("expected 1 chain, got %d", len(chains))
	}
	if len(chains[0]) != 4 { // start node plus three hops
		t.Errorf("depth bound not applied: %v", chains[0])
	}
}

func TestChainsFromIsolatedNode(t *testing.T) {
	chains := ChainsFrom(Graph{}, "solo", 0)
	if len(chains) != 1 || len(chains[0]) != 1 || chains[0][0] != "solo" {
		t.Errorf("isolated node should yield its own single-element chain: %v", chains)
	}
}

func TestChainsFromDiamond(t *testing.T) {
	g := Graph{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
	}
	chains := ChainsFrom(g, "a", 0)
	if len(chains) != 2 {
		t.Fatalf("diamond should yield one chain per route, got %d: %v", len(chains), chains)
	}
}
