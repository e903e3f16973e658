package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestWorkItemValidate(t *testing.T) {
	tests := []struct {
		name    string
		item    WorkItem
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid root item",
			item: WorkItem{
				ID:       "11111111-1111-4111-8111-111111111111",
				Title:    "Build the parser",
				Role:     RoleQueue,
				Priority: PriorityMedium,
			},
			wantErr: false,
		},
		{
			name: "valid child item",
			item: WorkItem{
				ID:       "11111111-1111-4111-8111-111111111111",
				ParentID: strPtr("22222222-2222-4222-8222-222222222222"),
				Title:    "Child",
				Role:     RoleQueue,
				Priority: PriorityLow,
				Depth:    1,
			},
			wantErr: false,
		},
		{
			name:    "missing title",
			item:    WorkItem{Role: RoleQueue, Priority: PriorityMedium},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "blank title",
			item:    WorkItem{Title: "   ", Role: RoleQueue, Priority: PriorityMedium},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name: "title at limit",
			item: WorkItem{
				Title:    strings.Repeat("a", MaxTitleLength),
				Role:     RoleQueue,
				Priority: PriorityMedium,
			},
			wantErr: false,
		},
		{
			name: "title over limit",
			item: WorkItem{
				Title:    strings.Repeat("a", MaxTitleLength+1),
				Role:     RoleQueue,
				Priority: PriorityMedium,
			},
			wantErr: true,
			errMsg:  "title must be 500 characters or less",
		},
		{
			name: "summary at limit",
			item: WorkItem{
				Title:    "ok",
				Summary:  strings.Repeat("s", MaxSummaryLength),
				Role:     RoleQueue,
				Priority: PriorityMedium,
			},
			wantErr: false,
		},
		{
			name: "summary over limit",
			item: WorkItem{
				Title:    "ok",
				Summary:  strings.Repeat("s", MaxSummaryLength+1),
				Role:     RoleQueue,
				Priority: PriorityMedium,
			},
			wantErr: true,
			errMsg:  "summary must be 2000 characters or less",
		},
		{
			name: "blank description",
			item: WorkItem{
				Title:       "ok",
				Description: "  ",
				Role:        RoleQueue,
				Priority:    PriorityMedium,
			},
			wantErr: true,
			errMsg:  "description must not be blank",
		},
		{
			name:    "invalid role",
			item:    WorkItem{Title: "ok", Role: Role("paused"), Priority: PriorityMedium},
			wantErr: true,
			errMsg:  "invalid role",
		},
		{
			name:    "invalid priority",
			item:    WorkItem{Title: "ok", Role: RoleQueue, Priority: Priority("urgent")},
			wantErr: true,
			errMsg:  "invalid priority",
		},
		{
			name: "complexity lower bound",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				Complexity: intPtr(MinComplexity),
			},
			wantErr: false,
		},
		{
			name: "complexity upper bound",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				Complexity: intPtr(MaxComplexity),
			},
			wantErr: false,
		},
		{
			name: "complexity below range",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				Complexity: intPtr(0),
			},
			wantErr: true,
			errMsg:  "complexity must be between 1 and 10",
		},
		{
			name: "complexity above range",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				Complexity: intPtr(11),
			},
			wantErr: true,
			errMsg:  "complexity must be between 1 and 10",
		},
		{
			name: "root with parent",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				ParentID: strPtr("22222222-2222-4222-8222-222222222222"),
				Depth:    0,
			},
			wantErr: true,
			errMsg:  "parentId must be set exactly when depth > 0",
		},
		{
			name: "non-root without parent",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				Depth: 2,
			},
			wantErr: true,
			errMsg:  "parentId must be set exactly when depth > 0",
		},
		{
			name: "invalid tag",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				Tags: "good,Bad-Tag",
			},
			wantErr: true,
			errMsg:  "invalid tag",
		},
		{
			name: "valid tags",
			item: WorkItem{
				Title: "ok", Role: RoleQueue, Priority: PriorityMedium,
				Tags: "bug,needs-review,p1",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errMsg)
					return
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestRoleAtOrBeyond(t *testing.T) {
	tests := []struct {
		current   Role
		threshold Role
		want      bool
	}{
		{RoleQueue, RoleQueue, true},
		{RoleQueue, RoleWork, false},
		{RoleWork, RoleQueue, true},
		{RoleWork, RoleWork, true},
		{RoleReview, RoleWork, true},
		{RoleTerminal, RoleTerminal, true},
		{RoleTerminal, RoleQueue, true},
		{RoleReview, RoleTerminal, false},
		// Blocked items never satisfy a threshold.
		{RoleBlocked, RoleQueue, false},
		{RoleBlocked, RoleWork, false},
		{RoleBlocked, RoleTerminal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.current)+"_vs_"+string(tt.threshold), func(t *testing.T) {
			if got := tt.current.AtOrBeyond(tt.threshold); got != tt.want {
				t.Errorf("Role(%s).AtOrBeyond(%s) = %v, want %v", tt.current, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestRoleIsValid(t *testing.T) {
	for _, r := range []Role{RoleQueue, RoleWork, RoleReview, RoleTerminal, RoleBlocked} {
		if !r.IsValid() {
			t.Errorf("Role(%q).IsValid() = false, want true", r)
		}
	}
	for _, r := range []Role{Role(""), Role("done"), Role("QUEUE")} {
		if r.IsValid() {
			t.Errorf("Role(%q).IsValid() = true, want false", r)
		}
	}
}

func TestPriorityRank(t *testing.T) {
	if !(PriorityHigh.Rank() < PriorityMedium.Rank() && PriorityMedium.Rank() < PriorityLow.Rank()) {
		t.Errorf("priority ranks out of order: high=%d medium=%d low=%d",
			PriorityHigh.Rank(), PriorityMedium.Rank(), PriorityLow.Rank())
	}
}

func TestDependencyValidate(t *testing.T) {
	tests := []struct {
		name    string
		dep     Dependency
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid blocks edge",
			dep:  Dependency{FromItemID: "a", ToItemID: "b", Type: DepBlocks},
		},
		{
			name: "valid threshold",
			dep:  Dependency{FromItemID: "a", ToItemID: "b", Type: DepBlocks, UnblockAt: rolePtr(RoleWork)},
		},
		{
			name:    "self reference",
			dep:     Dependency{FromItemID: "a", ToItemID: "a", Type: DepBlocks},
			wantErr: true,
			errMsg:  "cannot reference itself",
		},
		{
			name:    "missing endpoint",
			dep:     Dependency{FromItemID: "a", Type: DepBlocks},
			wantErr: true,
			errMsg:  "endpoints are required",
		},
		{
			name:    "invalid type",
			dep:     Dependency{FromItemID: "a", ToItemID: "b", Type: DependencyType("blocks")},
			wantErr: true,
			errMsg:  "invalid dependency type",
		},
		{
			name:    "relates-to with threshold",
			dep:     Dependency{FromItemID: "a", ToItemID: "b", Type: DepRelatesTo, UnblockAt: rolePtr(RoleWork)},
			wantErr: true,
			errMsg:  "cannot carry an unblockAt threshold",
		},
		{
			name:    "blocked as threshold",
			dep:     Dependency{FromItemID: "a", ToItemID: "b", Type: DepBlocks, UnblockAt: rolePtr(RoleBlocked)},
			wantErr: true,
			errMsg:  "invalid unblockAt threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dep.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errMsg)
					return
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestEffectiveUnblockRole(t *testing.T) {
	relates := Dependency{FromItemID: "a", ToItemID: "b", Type: DepRelatesTo}
	if _, ok := relates.EffectiveUnblockRole(); ok {
		t.Error("RELATES_TO edge should have no effective unblock role")
	}

	deflt := Dependency{FromItemID: "a", ToItemID: "b", Type: DepBlocks}
	if role, ok := deflt.EffectiveUnblockRole(); !ok || role != RoleTerminal {
		t.Errorf("nil unblockAt should default to terminal, got %q (ok=%v)", role, ok)
	}

	explicit := Dependency{FromItemID: "a", ToItemID: "b", Type: DepIsBlockedBy, UnblockAt: rolePtr(RoleWork)}
	if role, ok := explicit.EffectiveUnblockRole(); !ok || role != RoleWork {
		t.Errorf("explicit unblockAt should win, got %q (ok=%v)", role, ok)
	}
}

func TestBlockerID(t *testing.T) {
	blocks := Dependency{FromItemID: "a", ToItemID: "b", Type: DepBlocks}
	if blocker, gated := blocks.BlockerID(); blocker != "a" || gated != "b" {
		t.Errorf("BLOCKS: got blocker=%s gated=%s, want a/b", blocker, gated)
	}

	inverse := Dependency{FromItemID: "a", ToItemID: "b", Type: DepIsBlockedBy}
	if blocker, gated := inverse.BlockerID(); blocker != "b" || gated != "a" {
		t.Errorf("IS_BLOCKED_BY: got blocker=%s gated=%s, want b/a", blocker, gated)
	}
}

func TestNoteValidate(t *testing.T) {
	tests := []struct {
		name    string
		note    Note
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid note",
			note: Note{ItemID: "a", Key: "acceptance-criteria", Role: RoleWork},
		},
		{
			name: "empty body allowed",
			note: Note{ItemID: "a", Key: "k", Role: RoleQueue, Body: ""},
		},
		{
			name:    "missing item",
			note:    Note{Key: "k", Role: RoleWork},
			wantErr: true,
			errMsg:  "itemId is required",
		},
		{
			name:    "blank key",
			note:    Note{ItemID: "a", Key: " ", Role: RoleWork},
			wantErr: true,
			errMsg:  "key is required",
		},
		{
			name:    "key over limit",
			note:    Note{ItemID: "a", Key: strings.Repeat("k", MaxNoteKeyLength+1), Role: RoleWork},
			wantErr: true,
			errMsg:  "note key must be 200 characters or less",
		},
		{
			name:    "terminal is not a note phase",
			note:    Note{ItemID: "a", Key: "k", Role: RoleTerminal},
			wantErr: true,
			errMsg:  "invalid note role",
		},
		{
			name:    "blocked is not a note phase",
			note:    Note{ItemID: "a", Key: "k", Role: RoleBlocked},
			wantErr: true,
			errMsg:  "invalid note role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.note.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errMsg)
					return
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got, err := NormalizeTags([]string{" Bug ", "bug", "needs-review", ""})
	if err != nil {
		t.Fatalf("NormalizeTags() unexpected error: %v", err)
	}
	if got != "bug,needs-review" {
		t.Errorf("NormalizeTags() = %q, want %q", got, "bug,needs-review")
	}

	if _, err := NormalizeTags([]string{"-leading-dash"}); err == nil {
		t.Error("NormalizeTags() should reject tags not starting with [a-z0-9]")
	}
	if _, err := NormalizeTags([]string{"under_score"}); err == nil {
		t.Error("NormalizeTags() should reject underscores")
	}
}

func TestTriggerIsValid(t *testing.T) {
	for _, tr := range []Trigger{TriggerStart, TriggerComplete, TriggerBlock, TriggerHold, TriggerResume, TriggerCancel, TriggerCascade} {
		if !tr.IsValid() {
			t.Errorf("Trigger(%q).IsValid() = false, want true", tr)
		}
	}
	if Trigger("finish").IsValid() {
		t.Error("Trigger(finish).IsValid() = true, want false")
	}
}

func TestSortNormalization(t *testing.T) {
	if got := NormalizeSortBy("modified"); got != SortByModified {
		t.Errorf("NormalizeSortBy(modified) = %q", got)
	}
	if got := NormalizeSortBy("bogus"); got != SortByCreated {
		t.Errorf("NormalizeSortBy(bogus) = %q, want created fallback", got)
	}
	if got := NormalizeSortOrder("ASC"); got != SortAsc {
		t.Errorf("NormalizeSortOrder(ASC) = %q", got)
	}
	if got := NormalizeSortOrder(""); got != SortDesc {
		t.Errorf("NormalizeSortOrder(\"\") = %q, want desc default", got)
	}
}

// Wire format: roles serialize lowercase, dependency types uppercase.
func TestSerializationCasing(t *testing.T) {
	item := WorkItem{Title: "t", Role: RoleQueue, Priority: PriorityHigh}
	data, err := json.Marshal(&item)
	if err != nil {
		t.Fatalf("marshal item: %v", err)
	}
	if !strings.Contains(string(data), `"role":"queue"`) {
		t.Errorf("role should serialize lowercase, got %s", data)
	}
	if !strings.Contains(string(data), `"priority":"high"`) {
		t.Errorf("priority should serialize lowercase, got %s", data)
	}

	dep := Dependency{FromItemID: "a", ToItemID: "b", Type: DepIsBlockedBy, UnblockAt: rolePtr(RoleReview)}
	data, err = json.Marshal(&dep)
	if err != nil {
		t.Fatalf("marshal dependency: %v", err)
	}
	if !strings.Contains(string(data), `"type":"IS_BLOCKED_BY"`) {
		t.Errorf("dependency type should serialize uppercase, got %s", data)
	}
	if !strings.Contains(string(data), `"unblockAt":"review"`) {
		t.Errorf("unblockAt should serialize lowercase, got %s", data)
	}
}

// Helper functions

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}

func rolePtr(r Role) *Role {
	return &r
}
