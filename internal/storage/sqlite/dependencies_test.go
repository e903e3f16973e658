package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

// newTestDep builds a BLOCKS edge between two items.
func newTestDep(from, to *types.WorkItem, depType types.DependencyType) *types.Dependency {
	return &types.Dependency{
		ID:         uuid.NewString(),
		FromItemID: from.ID,
		ToItemID:   to.ID,
		Type:       depType,
	}
}

func TestCreateDependency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}

	dep := newTestDep(a, b, types.DepBlocks)
	if err := store.CreateDependency(ctx, dep); err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}

	got, err := store.GetDependency(ctx, dep.ID)
	if err != nil {
		t.Fatalf("GetDependency failed: %v", err)
	}
	if got.FromItemID != a.ID || got.ToItemID != b.ID || got.Type != types.DepBlocks {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.UnblockAt != nil {
		t.Errorf("unblockAt should be nil, got %v", *got.UnblockAt)
	}
}

func TestCreateDependencyWithThreshold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}

	review := types.RoleReview
	dep := newTestDep(a, b, types.DepBlocks)
	dep.UnblockAt = &review
	if err := store.CreateDependency(ctx, dep); err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}

	got, err := store.GetDependency(ctx, dep.ID)
	if err != nil {
		t.Fatalf("GetDependency failed: %v", err)
	}
	if got.UnblockAt == nil || *got.UnblockAt != types.RoleReview {
		t.Errorf("unblockAt lost: %v", got.UnblockAt)
	}
}

func TestCreateDependencyMissingEndpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	if err := store.CreateItem(ctx, a); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	dep := &types.Dependency{
		ID:         uuid.NewString(),
		FromItemID: a.ID,
		ToItemID:   uuid.NewString(),
		Type:       types.DepBlocks,
	}
	err := store.CreateDependency(ctx, dep)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDependencyDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}

	if err := store.CreateDependency(ctx, newTestDep(a, b, types.DepBlocks)); err != nil {
		t.Fatalf("first CreateDependency failed: %v", err)
	}

	err := store.CreateDependency(ctx, newTestDep(a, b, types.DepBlocks))
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	// A different type between the same endpoints is a distinct edge.
	if err := store.CreateDependency(ctx, newTestDep(a, b, types.DepRelatesTo)); err != nil {
		t.Errorf("different-type edge rejected: %v", err)
	}
}

func TestCreateDependencySelfReference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	if err := store.CreateItem(ctx, a); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	dep := &types.Dependency{
		ID:         uuid.NewString(),
		FromItemID: a.ID,
		ToItemID:   a.ID,
		Type:       types.DepBlocks,
	}
	err := store.CreateDependency(ctx, dep)
	if err == nil || !strings.Contains(err.Error(), "cannot reference itself") {
		t.Errorf("expected self-reference rejection, got %v", err)
	}
}

func TestCreateDependencyCycleRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	c := newTestItem("C")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b, c}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}

	if err := store.CreateDependency(ctx, newTestDep(a, b, types.DepBlocks)); err != nil {
		t.Fatalf("a->b failed: %v", err)
	}
	if err := store.CreateDependency(ctx, newTestDep(b, c, types.DepBlocks)); err != nil {
		t.Fatalf("b->c failed: %v", err)
	}

	// c BLOCKS a closes the loop.
	err := store.CreateDependency(ctx, newTestDep(c, a, types.DepBlocks))
	if !errors.Is(err, storage.ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}

	// The reversed spelling closes the same loop: a IS_BLOCKED_BY c means
	// c gates a.
	err = store.CreateDependency(ctx, newTestDep(a, c, types.DepIsBlockedBy))
	if !errors.Is(err, storage.ErrCycle) {
		t.Errorf("expected ErrCycle via IS_BLOCKED_BY, got %v", err)
	}

	// RELATES_TO never participates in cycles.
	if err := store.CreateDependency(ctx, newTestDep(c, a, types.DepRelatesTo)); err != nil {
		t.Errorf("RELATES_TO back edge rejected: %v", err)
	}
}

func TestCreateDependenciesBatchAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	c := newTestItem("C")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b, c}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}

	// A batch that is internally cyclic must be rejected whole.
	batch := []*types.Dependency{
		newTestDep(a, b, types.DepBlocks),
		newTestDep(b, c, types.DepBlocks),
		newTestDep(c, a, types.DepBlocks),
	}
	err := store.CreateDependencies(ctx, batch)
	if !errors.Is(err, storage.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	deps, err := store.ListDependenciesForItem(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListDependenciesForItem failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("partial batch persisted: %d edges", len(deps))
	}
}

func TestListDependencyDirections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	c := newTestItem("C")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b, c}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}

	ab := newTestDep(a, b, types.DepBlocks)
	bc := newTestDep(b, c, types.DepRelatesTo)
	if err := store.CreateDependencies(ctx, []*types.Dependency{ab, bc}); err != nil {
		t.Fatalf("CreateDependencies failed: %v", err)
	}

	from, err := store.ListDependenciesFrom(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListDependenciesFrom failed: %v", err)
	}
	if len(from) != 1 || from[0].ID != bc.ID {
		t.Errorf("from-edges wrong: %d", len(from))
	}

	to, err := store.ListDependenciesTo(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListDependenciesTo failed: %v", err)
	}
	if len(to) != 1 || to[0].ID != ab.ID {
		t.Errorf("to-edges wrong: %d", len(to))
	}

	both, err := store.ListDependenciesForItem(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListDependenciesForItem failed: %v", err)
	}
	if len(both) != 2 {
		t.Errorf("either-endpoint edges wrong: %d", len(both))
	}

	gating, err := store.ListGatingEdges(ctx)
	if err != nil {
		t.Fatalf("ListGatingEdges failed: %v", err)
	}
	if len(gating) != 1 || gating[0].ID != ab.ID {
		t.Errorf("gating edges should exclude RELATES_TO: %d", len(gating))
	}
}

func TestDeleteDependencyByEndpoints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}

	blocks := newTestDep(a, b, types.DepBlocks)
	relates := newTestDep(a, b, types.DepRelatesTo)
	if err := store.CreateDependencies(ctx, []*types.Dependency{blocks, relates}); err != nil {
		t.Fatalf("CreateDependencies failed: %v", err)
	}

	// Typed delete removes only the matching edge.
	bt := types.DepBlocks
	n, err := store.DeleteDependenciesByEndpoints(ctx, a.ID, b.ID, &bt)
	if err != nil {
		t.Fatalf("DeleteDependenciesByEndpoints failed: %v", err)
	}
	if n != 1 {
		t.Errorf("typed delete removed %d, want 1", n)
	}

	// Untyped delete removes the rest.
	n, err = store.DeleteDependenciesByEndpoints(ctx, a.ID, b.ID, nil)
	if err != nil {
		t.Fatalf("untyped delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("untyped delete removed %d, want 1", n)
	}
}

func TestDependenciesCascadeOnItemDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := newTestItem("A")
	b := newTestItem("B")
	if err := store.CreateItems(ctx, []*types.WorkItem{a, b}); err != nil {
		t.Fatalf("CreateItems failed: %v", err)
	}
	if err := store.CreateDependency(ctx, newTestDep(a, b, types.DepBlocks)); err != nil {
		t.Fatalf("CreateDependency failed: %v", err)
	}

	if err := store.DeleteItem(ctx, a.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	deps, err := store.ListDependenciesForItem(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListDependenciesForItem failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("edges survived endpoint deletion: %d", len(deps))
	}
}
