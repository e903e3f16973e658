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

func TestUpsertNotesInsertAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "Item", nil)

	env := f.service.ManageNotes(ctx, args(t, map[string]any{
		"op": "upsert",
		"notes": []map[string]any{
			{"itemId": it.ID, "key": "design", "role": "queue", "body": "First pass."},
		},
	}))
	data := requireSuccess(t, env)
	results := data["results"].([]tools.NoteWriteResult)
	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	created := results[0].Note
	assert.Equal(t, "First pass.", created.Body)

	// Same (itemId, key) updates in place, keeping id and creation time.
	env = f.service.ManageNotes(ctx, args(t, map[string]any{
		"op": "upsert",
		"notes": []map[string]any{
			{"itemId": it.ID, "key": "design", "role": "Queue", "body": "Second pass."},
		},
	}))
	data = requireSuccess(t, env)
	results = data["results"].([]tools.NoteWriteResult)
	require.True(t, results[0].Success)
	updated := results[0].Note
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Second pass.", updated.Body)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	notes, err := f.store.ListNotesForItem(ctx, it.ID, nil)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Second pass.", notes[0].Body)
}

func TestUpsertNotesBatchContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "Item", nil)

	env := f.service.ManageNotes(ctx, args(t, map[string]any{
		"op": "upsert",
		"notes": []map[string]any{
			{"itemId": uuid.NewString(), "key": "design", "role": "queue", "body": "Orphan."},
			{"itemId": it.ID, "key": "", "role": "queue", "body": "No key."},
			{"itemId": it.ID, "key": "findings", "role": "terminal", "body": "Bad role."},
			{"itemId": it.ID, "key": "findings", "role": "work", "body": "Good."},
		},
	}))
	data := requireSuccess(t, env)
	assert.Equal(t, "1 of 4 note(s) written", env.Message)

	results := data["results"].([]tools.NoteWriteResult)
	require.Len(t, results, 4)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Error)
	assert.False(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.True(t, results[3].Success)

	summary := data["summary"].(tools.BatchSummary)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
}

func TestDeleteNotesVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "Item", nil)
	design := f.note(t, it, "design", types.RoleQueue, "Plan.")
	f.note(t, it, "findings", types.RoleWork, "Learned things.")
	f.note(t, it, "review-findings", types.RoleReview, "Looks fine.")

	// By id list, tolerating a missing id.
	env := f.service.ManageNotes(ctx, args(t, map[string]any{
		"op":  "delete",
		"ids": []string{design.ID, uuid.NewString()},
	}))
	data := requireSuccess(t, env)
	assert.Equal(t, 1, data["deletedCount"])
	failures := data["failures"].([]map[string]string)
	require.Len(t, failures, 1)

	// By item and key.
	env = f.service.ManageNotes(ctx, args(t, map[string]any{
		"op":     "delete",
		"itemId": it.ID,
		"key":    "findings",
	}))
	data = requireSuccess(t, env)
	assert.Equal(t, 1, data["deletedCount"])

	// Remaining notes on the item.
	env = f.service.ManageNotes(ctx, args(t, map[string]any{
		"op":     "delete",
		"itemId": it.ID,
	}))
	data = requireSuccess(t, env)
	assert.Equal(t, 1, data["deletedCount"])

	notes, err := f.store.ListNotesForItem(ctx, it.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDeleteNotesErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "Item", nil)

	env := f.service.ManageNotes(ctx, args(t, map[string]any{"op": "delete"}))
	requireFailure(t, env, tools.CodeValidation)

	env = f.service.ManageNotes(ctx, args(t, map[string]any{
		"op":     "delete",
		"itemId": it.ID,
		"key":    "absent",
	}))
	requireFailure(t, env, tools.CodeNotFound)

	env = f.service.ManageNotes(ctx, args(t, map[string]any{
		"op":     "delete",
		"itemId": uuid.NewString(),
	}))
	requireFailure(t, env, tools.CodeNotFound)

	env = f.service.ManageNotes(ctx, args(t, map[string]any{"op": "upsert"}))
	requireFailure(t, env, tools.CodeValidation)
}
