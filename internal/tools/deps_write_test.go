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

func TestCreateDependenciesExplicit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	c := f.item(t, "C", nil)

	env := f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op": "create",
		"edges": []map[string]any{
			{"from": a.ID, "to": b.ID},
			{"from": b.ID, "to": c.ID, "type": "relates_to"},
			{"from": a.ID, "to": c.ID, "type": "BLOCKS", "unblockAt": "Review"},
		},
	}))
	data := requireSuccess(t, env)

	edges := data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 3)
	assert.Equal(t, 3, data["count"])

	assert.Equal(t, types.DepBlocks, edges[0].Type)
	assert.Nil(t, edges[0].UnblockAt)

	// Type is normalized uppercase, threshold lowercase.
	assert.Equal(t, types.DepRelatesTo, edges[1].Type)

	require.NotNil(t, edges[2].UnblockAt)
	assert.Equal(t, types.RoleReview, *edges[2].UnblockAt)

	stored, err := f.store.ListDependenciesForItem(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCreateDependenciesPatterns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	c := f.item(t, "C", nil)
	d := f.item(t, "D", nil)

	env := f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":      "create",
		"pattern": "linear",
		"itemIds": []string{a.ID, b.ID, c.ID},
	}))
	data := requireSuccess(t, env)
	edges := data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 2)
	assert.Equal(t, a.ID, edges[0].FromItemID)
	assert.Equal(t, b.ID, edges[0].ToItemID)
	assert.Equal(t, b.ID, edges[1].FromItemID)
	assert.Equal(t, c.ID, edges[1].ToItemID)

	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":      "create",
		"pattern": "fan-out",
		"fromId":  d.ID,
		"toIds":   []string{a.ID, b.ID},
	}))
	data = requireSuccess(t, env)
	edges = data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, d.ID, e.FromItemID)
	}

	// Fan-in with a shared threshold applied to every edge.
	e := f.item(t, "E", nil)
	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":        "create",
		"pattern":   "fan-in",
		"fromIds":   []string{a.ID, b.ID},
		"toId":      e.ID,
		"unblockAt": "work",
	}))
	data = requireSuccess(t, env)
	edges = data["dependencies"].([]*types.Dependency)
	require.Len(t, edges, 2)
	for _, edge := range edges {
		assert.Equal(t, e.ID, edge.ToItemID)
		require.NotNil(t, edge.UnblockAt)
		assert.Equal(t, types.RoleWork, *edge.UnblockAt)
	}
}

func TestCreateDependenciesRejectsCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	f.gate(t, a, b)

	env := f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":    "create",
		"edges": []map[string]any{{"from": b.ID, "to": a.ID}},
	}))
	requireFailure(t, env, tools.CodeConflict)

	// IS_BLOCKED_BY is normalized before the cycle check: b IS_BLOCKED_BY a
	// gates in the same direction as the existing edge, so no loop closes.
	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":    "create",
		"edges": []map[string]any{{"from": b.ID, "to": a.ID, "type": "IS_BLOCKED_BY"}},
	}))
	requireSuccess(t, env)

	// The same endpoints reversed through IS_BLOCKED_BY do close one.
	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":    "create",
		"edges": []map[string]any{{"from": a.ID, "to": b.ID, "type": "IS_BLOCKED_BY"}},
	}))
	requireFailure(t, env, tools.CodeConflict)

	// A batch with one cycling edge creates nothing.
	c := f.item(t, "C", nil)
	before, err := f.store.ListDependenciesForItem(ctx, c.ID)
	require.NoError(t, err)
	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op": "create",
		"edges": []map[string]any{
			{"from": b.ID, "to": c.ID},
			{"from": c.ID, "to": a.ID},
		},
	}))
	requireFailure(t, env, tools.CodeConflict)
	after, err := f.store.ListDependenciesForItem(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestCreateDependenciesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"no edges or pattern", map[string]any{}},
		{"edges and pattern together", map[string]any{
			"edges":   []map[string]any{{"from": a.ID, "to": uuid.NewString()}},
			"pattern": "linear",
			"itemIds": []string{a.ID, uuid.NewString()},
		}},
		{"self edge", map[string]any{
			"edges": []map[string]any{{"from": a.ID, "to": a.ID}},
		}},
		{"unknown type", map[string]any{
			"edges": []map[string]any{{"from": a.ID, "to": uuid.NewString(), "type": "DEPENDS"}},
		}},
		{"threshold on relates_to", map[string]any{
			"edges": []map[string]any{{"from": a.ID, "to": uuid.NewString(), "type": "RELATES_TO", "unblockAt": "work"}},
		}},
		{"linear needs two ids", map[string]any{
			"pattern": "linear",
			"itemIds": []string{a.ID},
		}},
		{"unknown pattern", map[string]any{
			"pattern": "star",
			"itemIds": []string{a.ID, uuid.NewString()},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params["op"] = "create"
			env := f.service.ManageDependencies(ctx, args(t, tt.params))
			requireFailure(t, env, tools.CodeValidation)
		})
	}

	// Endpoints must exist.
	env := f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":    "create",
		"edges": []map[string]any{{"from": a.ID, "to": uuid.NewString()}},
	}))
	requireFailure(t, env, tools.CodeNotFound)
}

func TestDeleteDependencies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.item(t, "A", nil)
	b := f.item(t, "B", nil)
	c := f.item(t, "C", nil)
	ab := f.gate(t, a, b)
	f.gate(t, a, c)
	f.gate(t, b, c)

	env := f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op": "delete",
		"id": ab.ID,
	}))
	data := requireSuccess(t, env)
	assert.Equal(t, 1, data["deletedCount"])

	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":     "delete",
		"fromId": a.ID,
		"toId":   c.ID,
	}))
	data = requireSuccess(t, env)
	assert.Equal(t, 1, data["deletedCount"])

	// itemId sweep needs the deleteAll acknowledgement.
	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":     "delete",
		"itemId": c.ID,
	}))
	requireFailure(t, env, tools.CodeValidation)

	env = f.service.ManageDependencies(ctx, args(t, map[string]any{
		"op":        "delete",
		"itemId":    c.ID,
		"deleteAll": true,
	}))
	data = requireSuccess(t, env)
	assert.Equal(t, 1, data["deletedCount"])

	remaining, err := f.store.ListDependenciesForItem(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	env = f.service.ManageDependencies(ctx, args(t, map[string]any{"op": "delete"}))
	requireFailure(t, env, tools.CodeValidation)
}
