package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/workflow"
)

func itemAt(role types.Role, previous *types.Role) *types.WorkItem {
	return &types.WorkItem{
		ID:           "item-1",
		Title:        "Test item",
		Role:         role,
		PreviousRole: previous,
		Priority:     types.PriorityMedium,
		Version:      1,
	}
}

func TestResolveTransitionTable(t *testing.T) {
	work := types.RoleWork

	tests := []struct {
		name        string
		role        types.Role
		previous    *types.Role
		trigger     types.Trigger
		review      bool
		wantTarget  types.Role
		wantLabel   string
		wantResume  bool
		wantFailure string
	}{
		{name: "queue start", role: types.RoleQueue, trigger: types.TriggerStart, review: true, wantTarget: types.RoleWork},
		{name: "queue complete", role: types.RoleQueue, trigger: types.TriggerComplete, wantTarget: types.RoleTerminal},
		{name: "queue block", role: types.RoleQueue, trigger: types.TriggerBlock, wantTarget: types.RoleBlocked},
		{name: "queue hold", role: types.RoleQueue, trigger: types.TriggerHold, wantTarget: types.RoleBlocked},
		{name: "queue cancel", role: types.RoleQueue, trigger: types.TriggerCancel, wantTarget: types.RoleTerminal, wantLabel: "cancelled"},
		{name: "queue resume fails", role: types.RoleQueue, trigger: types.TriggerResume, wantFailure: "does not apply"},

		{name: "work start with review phase", role: types.RoleWork, trigger: types.TriggerStart, review: true, wantTarget: types.RoleReview},
		{name: "work start without review phase", role: types.RoleWork, trigger: types.TriggerStart, review: false, wantTarget: types.RoleTerminal},
		{name: "work complete", role: types.RoleWork, trigger: types.TriggerComplete, wantTarget: types.RoleTerminal},
		{name: "work block", role: types.RoleWork, trigger: types.TriggerBlock, wantTarget: types.RoleBlocked},

		{name: "review start", role: types.RoleReview, trigger: types.TriggerStart, review: true, wantTarget: types.RoleTerminal},
		{name: "review complete", role: types.RoleReview, trigger: types.TriggerComplete, wantTarget: types.RoleTerminal},
		{name: "review cancel", role: types.RoleReview, trigger: types.TriggerCancel, wantTarget: types.RoleTerminal, wantLabel: "cancelled"},

		{name: "terminal start fails", role: types.RoleTerminal, trigger: types.TriggerStart, wantFailure: "already terminal"},
		{name: "terminal complete fails", role: types.RoleTerminal, trigger: types.TriggerComplete, wantFailure: "does not apply"},
		{name: "terminal cancel fails", role: types.RoleTerminal, trigger: types.TriggerCancel, wantFailure: "does not apply"},

		{name: "blocked complete", role: types.RoleBlocked, trigger: types.TriggerComplete, wantTarget: types.RoleTerminal},
		{name: "blocked resume", role: types.RoleBlocked, previous: &work, trigger: types.TriggerResume, wantTarget: types.RoleWork, wantResume: true},
		{name: "blocked resume without previous", role: types.RoleBlocked, trigger: types.TriggerResume, wantFailure: "no previous role"},
		{name: "blocked cancel", role: types.RoleBlocked, trigger: types.TriggerCancel, wantTarget: types.RoleTerminal, wantLabel: "cancelled"},
		{name: "blocked start fails", role: types.RoleBlocked, trigger: types.TriggerStart, wantFailure: "does not apply"},
		{name: "blocked block fails", role: types.RoleBlocked, trigger: types.TriggerBlock, wantFailure: "does not apply"},

		{name: "unknown trigger", role: types.RoleQueue, trigger: types.Trigger("launch"), wantFailure: "unknown trigger"},
		{name: "cascade rejected from outside", role: types.RoleWork, trigger: types.TriggerCascade, wantFailure: "applied internally"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := workflow.ResolveTransition(itemAt(tt.role, tt.previous), tt.trigger, tt.review)

			if tt.wantFailure != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantFailure)
				var resErr *workflow.ResolutionError
				assert.ErrorAs(t, err, &resErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, res.Target)
			assert.Equal(t, tt.wantLabel, res.StatusLabel)
			assert.Equal(t, tt.wantResume, res.ViaResume)
		})
	}
}

func TestBlockedErrorMessage(t *testing.T) {
	err := &workflow.BlockedError{Blockers: []types.Blocker{
		{FromItemID: "dep-1", Role: types.RoleQueue, RequiredRole: types.RoleTerminal},
		{FromItemID: "dep-2", Role: types.RoleWork, RequiredRole: types.RoleReview},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "dep-1 is queue, needs terminal")
	assert.Contains(t, msg, "dep-2 is work, needs review")
}
