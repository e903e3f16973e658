package tools_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/types"
)

func TestQueryDependenciesDirections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	c := f.item(t, "C", nil)
	f.gate(t, a, b)
	f.gate(t, b, c)

	query := func(params map[string]any) map[string]any {
		return requireSuccess(t, f.service.QueryDependencies(ctx, args(t, params)))
	}

	data := query(map[string]any{"itemId": b.ID, "direction": "incoming"})
	assert.Equal(t, 1, data["count"])
	edges := data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 1)
	assert.Equal(t, a.ID, edges[0].FromItemID)

	data = query(map[string]any{"itemId": b.ID, "direction": "outgoing"})
	edges = data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 1)
	assert.Equal(t, c.ID, edges[0].ToItemID)

	data = query(map[string]any{"itemId": b.ID})
	assert.Equal(t, "all", data["direction"])
	assert.Equal(t, 2, data["count"])

	// b is gated by a, which is still in queue.
	assert.Equal(t, true, data["isBlocked"])
	blockers := data["blockers"].([]types.Blocker)
	require.Len(t, blockers, 1)
	assert.Equal(t, a.ID, blockers[0].FromItemID)
	assert.Equal(t, types.RoleQueue, blockers[0].Role)
	assert.Equal(t, types.RoleTerminal, blockers[0].RequiredRole)

	// a gates others but nothing gates it.
	data = query(map[string]any{"itemId": a.ID})
	assert.Equal(t, false, data["isBlocked"])
}

func TestQueryDependenciesChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	c := f.item(t, "C", nil)
	f.gate(t, a, b)
	f.gate(t, b, c)

	env := f.service.QueryDependencies(ctx, args(t, map[string]any{"itemId": b.ID}))
	data := requireSuccess(t, env)

	chain := data["chain"].([]string)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, chain)
	assert.Equal(t, 3, data["depth"])
}

func TestQueryDependenciesChainBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	items := make([]*types.WorkItem, 5)
	for i, title := range []string{"A", "B", "C", "D", "E"} {
		items[i] = f.item(t, title, nil)
	}
	for i := 0; i < 4; i++ {
		f.gate(t, items[i], items[i+1])
	}

	// One expansion hop from A reaches only the A-B edge.
	env := f.service.QueryDependencies(ctx, args(t, map[string]any{
		"itemId":   items[0].ID,
		"maxDepth": 1,
	}))
	data := requireSuccess(t, env)
	chain := data["chain"].([]string)
	assert.Equal(t, []string{items[0].ID, items[1].ID}, chain)
	assert.Equal(t, 2, data["depth"])

	// Unbounded, the whole component comes back in order.
	env = f.service.QueryDependencies(ctx, args(t, map[string]any{"itemId": items[0].ID}))
	data = requireSuccess(t, env)
	chain = data["chain"].([]string)
	require.Len(t, chain, 5)
	assert.Equal(t, 5, data["depth"])
	for i, it := range items {
		assert.Equal(t, it.ID, chain[i])
	}
}

func TestQueryDependenciesNeighborsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	f.gate(t, a, b)

	env := f.service.QueryDependencies(ctx, args(t, map[string]any{
		"itemId":        b.ID,
		"neighborsOnly": true,
	}))
	data := requireSuccess(t, env)
	assert.NotContains(t, data, "chain")
	assert.NotContains(t, data, "depth")
	assert.Equal(t, 1, data["count"])
}

func TestQueryDependenciesTypeFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	f.gate(t, a, b)
	require.NoError(t, f.store.CreateDependency(ctx, &types.Dependency{
		ID:         uuid.NewString(),
		FromItemID: a.ID,
		ToItemID:   b.ID,
		Type:       types.DepRelatesTo,
	}))

	env := f.service.QueryDependencies(ctx, args(t, map[string]any{
		"itemId": a.ID,
		"type":   "relates_to",
	}))
	data := requireSuccess(t, env)
	edges := data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 1)
	assert.Equal(t, types.DepRelatesTo, edges[0].Type)

	env = f.service.QueryDependencies(ctx, args(t, map[string]any{
		"itemId": a.ID,
		"type":   "BLOCKS",
	}))
	data = requireSuccess(t, env)
	edges = data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 1)
	assert.Equal(t, types.DepBlocks, edges[0].Type)
}

func TestQueryDependenciesItemInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "Schema", nil)
	b := f.item(t, "API", nil)
	f.gate(t, a, b)

	env := f.service.QueryDependencies(ctx, args(t, map[string]any{
		"itemId":          b.ID,
		"includeItemInfo": true,
	}))
	data := requireSuccess(t, env)
	views := data["dependencies"].([]tools.EdgeView)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].FromItem)
	assert.Equal(t, "Schema", views[0].FromItem.Title)
	assert.Equal(t, types.RoleQueue, views[0].FromItem.Role)
	require.NotNil(t, views[0].ToItem)
	assert.Equal(t, "API", views[0].ToItem.Title)
}

func TestQueryDependenciesErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)

	env := f.service.QueryDependencies(ctx, args(t, map[string]any{}))
	requireFailure(t, env, tools.CodeValidation)

	env = f.service.QueryDependencies(ctx, args(t, map[string]any{"itemId": uuid.NewString()}))
	requireFailure(t, env, tools.CodeNotFound)

	env = f.service.QueryDependencies(ctx, args(t, map[string]any{"itemId": a.ID, "direction": "sideways"}))
	requireFailure(t, env, tools.CodeValidation)

	env = f.service.QueryDependencies(ctx, args(t, map[string]any{"itemId": a.ID, "type": "FOLLOWS"}))
	requireFailure(t, env, tools.CodeValidation)
}
