// Package types defines core data structures for the loom work-item orchestrator.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Field length and range bounds enforced by Validate.
const (
	MaxTitleLength   = 500
	MaxSummaryLength = 2000
	MaxNoteKeyLength = 200
	MinComplexity    = 1
	MaxComplexity    = 10
)

// WorkItem is a node of a work tree and a vertex in the dependency graph.
type WorkItem struct {
	ID                   string    `json:"id"`
	ParentID             *string   `json:"parentId,omitempty"` // nil iff Depth == 0
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	Summary              string    `json:"summary,omitempty"`
	Role                 Role      `json:"role"`
	PreviousRole         *Role     `json:"previousRole,omitempty"` // role held before entering blocked
	StatusLabel          string    `json:"statusLabel,omitempty"`  // free-form, e.g. "cancelled"
	Priority             Priority  `json:"priority"`
	Complexity           *int      `json:"complexity,omitempty"` // 1-10 when set
	RequiresVerification bool      `json:"requiresVerification"`
	Depth                int       `json:"depth"`
	Metadata             string    `json:"metadata,omitempty"` // opaque, typically JSON
	Tags                 string    `json:"tags,omitempty"`     // comma-joined lowercase identifiers
	CreatedAt            time.Time `json:"createdAt"`
	ModifiedAt           time.Time `json:"modifiedAt"`
	RoleChangedAt        time.Time `json:"roleChangedAt"`
	Version              int       `json:"version"` // >= 1, bumped on every successful update
}

// Validate checks structural invariants on the item.
func (w *WorkItem) Validate() error {
	if strings.TrimSpace(w.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(w.Title) > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, len(w.Title))
	}
	if w.Description != "" && strings.TrimSpace(w.Description) == "" {
		return fmt.Errorf("description must not be blank when present")
	}
	if len(w.Summary) > MaxSummaryLength {
		return fmt.Errorf("summary must be %d characters or less (got %d)", MaxSummaryLength, len(w.Summary))
	}
	if !w.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", w.Role)
	}
	if w.PreviousRole != nil && !w.PreviousRole.IsValid() {
		return fmt.Errorf("invalid previous role: %s", *w.PreviousRole)
	}
	if !w.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", w.Priority)
	}
	if w.Complexity != nil && (*w.Complexity < MinComplexity || *w.Complexity > MaxComplexity) {
		return fmt.Errorf("complexity must be between %d and %d (got %d)", MinComplexity, MaxComplexity, *w.Complexity)
	}
	if w.Depth < 0 {
		return fmt.Errorf("depth cannot be negative")
	}
	// parentId and depth must agree: roots have neither, children have both.
	if (w.ParentID == nil) != (w.Depth == 0) {
		return fmt.Errorf("parentId must be set exactly when depth > 0 (depth=%d)", w.Depth)
	}
	if w.Tags != "" {
		for _, tag := range SplitTags(w.Tags) {
			if err := ValidateTag(tag); err != nil {
				return err
			}
		}
	}
	return nil
}

// TagList returns the item's tags as a slice; empty slice for no tags.
func (w *WorkItem) TagList() []string {
	return SplitTags(w.Tags)
}

// HasTag reports whether the item carries the exact tag.
func (w *WorkItem) HasTag(tag string) bool {
	for _, t := range w.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

var tagPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidateTag checks a single tag against the allowed identifier form.
func ValidateTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("invalid tag %q: must match [a-z0-9][a-z0-9-]*", tag)
	}
	return nil
}

// NormalizeTags lowercases, trims, validates and de-duplicates tags,
// returning the canonical comma-joined form.
func NormalizeTags(tags []string) (string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if err := ValidateTag(tag); err != nil {
			return "", err
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return strings.Join(out, ","), nil
}

// SplitTags splits a stored comma-joined tag string into a slice.
func SplitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Role is the lifecycle stage of a work item.
type Role string

// Role constants. The productive order is queue < work < review < terminal;
// blocked sits outside that order.
const (
	RoleQueue    Role = "queue"
	RoleWork     Role = "work"
	RoleReview   Role = "review"
	RoleTerminal Role = "terminal"
	RoleBlocked  Role = "blocked"
)

// IsValid checks if the role value is valid.
func (r Role) IsValid() bool {
	switch r {
	case RoleQueue, RoleWork, RoleReview, RoleTerminal, RoleBlocked:
		return true
	}
	return false
}

// rank positions productive roles on the lifecycle order. Blocked has no rank.
func (r Role) rank() (int, bool) {
	switch r {
	case RoleQueue:
		return 0, true
	case RoleWork:
		return 1, true
	case RoleReview:
		return 2, true
	case RoleTerminal:
		return 3, true
	}
	return 0, false
}

// AtOrBeyond reports whether the role has reached or passed the threshold on
// the productive order. A blocked role never satisfies a threshold.
func (r Role) AtOrBeyond(threshold Role) bool {
	cur, ok := r.rank()
	if !ok {
		return false
	}
	want, ok := threshold.rank()
	if !ok {
		return false
	}
	return cur >= want
}

// IsNotePhase reports whether the role names a phase notes may attach to.
func (r Role) IsNotePhase() bool {
	switch r {
	case RoleQueue, RoleWork, RoleReview:
		return true
	}
	return false
}

// Priority orders items for selection.
type Priority string

// Priority constants
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid checks if the priority value is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank maps priorities to a sortable weight; high sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// DependencyType categorizes a dependency edge. Serialized uppercase.
type DependencyType string

// Dependency type constants
const (
	// DepBlocks gates the target item on the source item.
	DepBlocks DependencyType = "BLOCKS"
	// DepIsBlockedBy gates the source item on the target item.
	DepIsBlockedBy DependencyType = "IS_BLOCKED_BY"
	// DepRelatesTo is informational and never gates transitions.
	DepRelatesTo DependencyType = "RELATES_TO"
)

// IsValid checks if the dependency type value is valid.
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepIsBlockedBy, DepRelatesTo:
		return true
	}
	return false
}

// Gates returns true if edges of this type participate in blocking.
func (d DependencyType) Gates() bool {
	return d == DepBlocks || d == DepIsBlockedBy
}

// Dependency is a directed typed edge between two work items.
type Dependency struct {
	ID         string         `json:"id"`
	FromItemID string         `json:"fromItemId"`
	ToItemID   string         `json:"toItemId"`
	Type       DependencyType `json:"type"`
	UnblockAt  *Role          `json:"unblockAt,omitempty"` // productive role threshold; nil for RELATES_TO
	CreatedAt  time.Time      `json:"createdAt"`
}

// Validate checks structural invariants on the edge.
func (d *Dependency) Validate() error {
	if d.FromItemID == "" || d.ToItemID == "" {
		return fmt.Errorf("dependency endpoints are required")
	}
	if d.FromItemID == d.ToItemID {
		return fmt.Errorf("dependency cannot reference itself")
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", d.Type)
	}
	if d.Type == DepRelatesTo && d.UnblockAt != nil {
		return fmt.Errorf("RELATES_TO dependencies cannot carry an unblockAt threshold")
	}
	if d.UnblockAt != nil {
		if _, ok := d.UnblockAt.rank(); !ok {
			return fmt.Errorf("invalid unblockAt threshold: %s", *d.UnblockAt)
		}
	}
	return nil
}

// EffectiveUnblockRole resolves the threshold that satisfies this edge:
// nil for RELATES_TO, otherwise unblockAt defaulting to terminal.
func (d *Dependency) EffectiveUnblockRole() (Role, bool) {
	if d.Type == DepRelatesTo {
		return "", false
	}
	if d.UnblockAt != nil {
		return *d.UnblockAt, true
	}
	return RoleTerminal, true
}

// BlockerID returns the id of the item whose role gates this edge,
// and the id of the item being gated.
func (d *Dependency) BlockerID() (blocker, gated string) {
	if d.Type == DepIsBlockedBy {
		return d.ToItemID, d.FromItemID
	}
	return d.FromItemID, d.ToItemID
}

// Note is a structured annotation attached to a work item, unique per key.
type Note struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"itemId"`
	Key        string    `json:"key"`
	Role       Role      `json:"role"` // queue, work or review
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Validate checks structural invariants on the note.
func (n *Note) Validate() error {
	if n.ItemID == "" {
		return fmt.Errorf("note itemId is required")
	}
	if strings.TrimSpace(n.Key) == "" {
		return fmt.Errorf("note key is required")
	}
	if len(n.Key) > MaxNoteKeyLength {
		return fmt.Errorf("note key must be %d characters or less (got %d)", MaxNoteKeyLength, len(n.Key))
	}
	if !n.Role.IsNotePhase() {
		return fmt.Errorf("invalid note role: %s", n.Role)
	}
	return nil
}

// Trigger is a symbolic input to the workflow state machine.
type Trigger string

// Trigger constants
const (
	TriggerStart    Trigger = "start"
	TriggerComplete Trigger = "complete"
	TriggerBlock    Trigger = "block"
	TriggerHold     Trigger = "hold"
	TriggerResume   Trigger = "resume"
	TriggerCancel   Trigger = "cancel"
	// TriggerCascade marks automatic parent completion; issued by the engine only.
	TriggerCascade Trigger = "cascade"
)

// IsValid checks if the trigger value is valid.
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerStart, TriggerComplete, TriggerBlock, TriggerHold,
		TriggerResume, TriggerCancel, TriggerCascade:
		return true
	}
	return false
}

// RoleTransition is an append-only audit record of a role change.
type RoleTransition struct {
	ID          int64     `json:"id"`
	ItemID      string    `json:"itemId"`
	FromRole    Role      `json:"fromRole"`
	ToRole      Role      `json:"toRole"`
	Trigger     Trigger   `json:"trigger"`
	Summary     string    `json:"summary,omitempty"`
	StatusLabel string    `json:"statusLabel,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Blocker identifies one unsatisfied gating edge on an item.
type Blocker struct {
	FromItemID   string `json:"fromItemId"`
	Role         Role   `json:"role"`         // blocker's current role
	RequiredRole Role   `json:"requiredRole"` // effective unblock threshold
}

// Block type labels used by blocked-item listings.
const (
	BlockTypeExplicit   = "explicit"
	BlockTypeDependency = "dependency"
)

// BlockedItem pairs an item with the reason it cannot progress.
type BlockedItem struct {
	Item      *WorkItem `json:"item"`
	BlockType string    `json:"blockType"`
	Blockers  []Blocker `json:"blockers,omitempty"`
}

// TreeNode is a work item with its resolved children, for tree projections.
type TreeNode struct {
	Item     *WorkItem   `json:"item"`
	Children []*TreeNode `json:"children,omitempty"`
}

// RootProgress summarises completion of one root's direct children.
type RootProgress struct {
	Item             *WorkItem `json:"item"`
	ChildCount       int       `json:"childCount"`
	TerminalChildren int       `json:"terminalChildren"`
}

// Overview is the aggregate snapshot returned by the overview query.
type Overview struct {
	TotalItems   int            `json:"totalItems"`
	ByRole       map[Role]int   `json:"byRole"`
	ReadyCount   int            `json:"readyCount"`
	BlockedCount int            `json:"blockedCount"`
	Roots        []RootProgress `json:"roots,omitempty"`
	RecentItems  []*WorkItem    `json:"recentItems,omitempty"`
}
