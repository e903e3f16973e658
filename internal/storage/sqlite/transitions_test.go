package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/types"
)

func TestAppendAndListTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := newTestItem("Tracked")
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	steps := []*types.RoleTransition{
		{ItemID: item.ID, FromRole: types.RoleQueue, ToRole: types.RoleWork, Trigger: types.TriggerStart, OccurredAt: base},
		{ItemID: item.ID, FromRole: types.RoleWork, ToRole: types.RoleReview, Trigger: types.TriggerComplete, OccurredAt: base.Add(time.Second)},
		{ItemID: item.ID, FromRole: types.RoleReview, ToRole: types.RoleTerminal, Trigger: types.TriggerComplete, OccurredAt: base.Add(2 * time.Second)},
	}
	for _, tr := range steps {
		if err := store.AppendTransition(ctx, tr); err != nil {
			t.Fatalf("AppendTransition failed: %v", err)
		}
		if tr.ID == 0 {
			t.Errorf("transition id not assigned for %s", tr.Trigger)
		}
	}

	got, err := store.ListTransitionsForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListTransitionsForItem failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(got))
	}
	for i, want := range []types.Trigger{types.TriggerStart, types.TriggerComplete, types.TriggerComplete} {
		if got[i].Trigger != want {
			t.Errorf("position %d: trigger %q, want %q", i, got[i].Trigger, want)
		}
	}
	if got[0].FromRole != types.RoleQueue || got[0].ToRole != types.RoleWork {
		t.Errorf("first transition roles wrong: %s -> %s", got[0].FromRole, got[0].ToRole)
	}
	if !got[1].OccurredAt.After(got[0].OccurredAt) {
		t.Errorf("occurredAt ordering lost: %v <= %v", got[1].OccurredAt, got[0].OccurredAt)
	}
}

func TestAppendTransitionDefaultsOccurredAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := newTestItem("Tracked")
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	tr := &types.RoleTransition{
		ItemID:   item.ID,
		FromRole: types.RoleQueue,
		ToRole:   types.RoleBlocked,
		Trigger:  types.TriggerBlock,
	}
	if err := store.AppendTransition(ctx, tr); err != nil {
		t.Fatalf("AppendTransition failed: %v", err)
	}
	if tr.OccurredAt.IsZero() {
		t.Error("occurredAt not defaulted")
	}

	got, err := store.ListTransitionsForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListTransitionsForItem failed: %v", err)
	}
	if len(got) != 1 || got[0].OccurredAt.IsZero() {
		t.Errorf("stored transition malformed: %+v", got)
	}
}

func TestTransitionsCascadeOnItemDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := newTestItem("Tracked")
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	tr := &types.RoleTransition{
		ItemID:   item.ID,
		FromRole: types.RoleQueue,
		ToRole:   types.RoleWork,
		Trigger:  types.TriggerStart,
	}
	if err := store.AppendTransition(ctx, tr); err != nil {
		t.Fatalf("AppendTransition failed: %v", err)
	}

	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	got, err := store.ListTransitionsForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListTransitionsForItem failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("transitions survived item deletion: %d", len(got))
	}
}
