package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/deps"
	"github.com/loomhq/loom/internal/noteschema"
	"github.com/loomhq/loom/internal/storage/sqlite"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/workflow"
)

type fixture struct {
	store   *sqlite.Store
	service *tools.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(context.Background(), t.TempDir()+"/test.db")
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	schemas, err := noteschema.NewRegistry("")
	require.NoError(t, err, "failed to load note schemas")

	depEngine := deps.NewEngine(store)
	wfEngine := workflow.NewEngine(store, depEngine, nil)
	service := tools.NewService(store, depEngine, wfEngine, schemas, tools.Options{Version: "test"})
	return &fixture{store: store, service: service}
}

// item creates a queue item directly in storage, bypassing the handlers.
func (f *fixture) item(t *testing.T, title string, parent *types.WorkItem) *types.WorkItem {
	t.Helper()
	it := &types.WorkItem{
		ID:       uuid.NewString(),
		Title:    title,
		Role:     types.RoleQueue,
		Priority: types.PriorityMedium,
	}
	if parent != nil {
		it.ParentID = &parent.ID
		it.Depth = parent.Depth + 1
	}
	require.NoError(t, f.store.CreateItem(context.Background(), it))
	return it
}

// tagged creates a queue item carrying tags, so note schemas apply.
func (f *fixture) tagged(t *testing.T, title, tags string, parent *types.WorkItem) *types.WorkItem {
	t.Helper()
	it := &types.WorkItem{
		ID:       uuid.NewString(),
		Title:    title,
		Role:     types.RoleQueue,
		Priority: types.PriorityMedium,
		Tags:     tags,
	}
	if parent != nil {
		it.ParentID = &parent.ID
		it.Depth = parent.Depth + 1
	}
	require.NoError(t, f.store.CreateItem(context.Background(), it))
	return it
}

// gate wires blocker BLOCKS gated with the default terminal threshold.
func (f *fixture) gate(t *testing.T, blocker, gated *types.WorkItem) *types.Dependency {
	t.Helper()
	dep := &types.Dependency{
		ID:         uuid.NewString(),
		FromItemID: blocker.ID,
		ToItemID:   gated.ID,
		Type:       types.DepBlocks,
	}
	require.NoError(t, f.store.CreateDependency(context.Background(), dep))
	return dep
}

// note writes a note directly in storage.
func (f *fixture) note(t *testing.T, item *types.WorkItem, key string, role types.Role, body string) *types.Note {
	t.Helper()
	stored, err := f.store.UpsertNote(context.Background(), &types.Note{
		ID:     uuid.NewString(),
		ItemID: item.ID,
		Key:    key,
		Role:   role,
		Body:   body,
	})
	require.NoError(t, err)
	return stored
}

// requireSuccess asserts a success envelope and returns its data map.
func requireSuccess(t *testing.T, env *tools.Envelope) map[string]any {
	t.Helper()
	require.NotNil(t, env)
	if !env.Success {
		require.NotNil(t, env.Error)
		t.Fatalf("expected success, got %s: %s", env.Error.Code, env.Error.Message)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		return nil
	}
	return data
}

// requireFailure asserts an error envelope with the given code.
func requireFailure(t *testing.T, env *tools.Envelope, code tools.ErrorCode) *tools.ErrorBody {
	t.Helper()
	require.NotNil(t, env)
	require.False(t, env.Success, "expected failure envelope, got success")
	require.NotNil(t, env.Error)
	assert.Equal(t, code, env.Error.Code, "error message: %s", env.Error.Message)
	return env.Error
}

// args builds a raw argument payload from a map, mirroring what the MCP
// adapter hands the handlers.
func args(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
