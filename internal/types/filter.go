package types

import (
	"strings"
	"time"
)

// Sort field and direction vocabulary for item queries.
const (
	SortByCreated  = "created"
	SortByModified = "modified"
	SortByPriority = "priority"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// NormalizeSortBy maps a raw sort field to the supported vocabulary,
// falling back to created for unknown values.
func NormalizeSortBy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SortByModified, "modified_at", "modifiedat":
		return SortByModified
	case SortByPriority:
		return SortByPriority
	default:
		return SortByCreated
	}
}

// NormalizeSortOrder maps a raw direction to asc/desc, defaulting to desc.
func NormalizeSortOrder(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), SortAsc) {
		return SortAsc
	}
	return SortDesc
}

// ItemFilter is the conjunctive filter surface for item list queries.
// Nil pointer fields are not applied; Tags OR-combine.
type ItemFilter struct {
	ParentID          *string
	Depth             *int
	Role              *Role
	Priority          *Priority
	Tags              []string
	Query             string // case-insensitive substring over title and summary
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
	ModifiedAfter     *time.Time
	ModifiedBefore    *time.Time
	RoleChangedAfter  *time.Time
	RoleChangedBefore *time.Time
	SortBy            string
	SortOrder         string
	Limit             int
	Offset            int
}

// ItemUpdate is an optimistic-locking patch. Nil fields are left untouched.
// Role bookkeeping fields are driven by the workflow engine: PreviousRole is
// set when an item enters blocked and ClearPreviousRole resets it on exit.
type ItemUpdate struct {
	Title                *string
	Description          *string
	Summary              *string
	Priority             *Priority
	Complexity           *int
	RequiresVerification *bool
	Metadata             *string
	Tags                 *string // canonical comma-joined form
	Role                 *Role
	PreviousRole         *Role
	ClearPreviousRole    bool
	StatusLabel          *string
	RoleChangedAt        *time.Time
}

// Empty reports whether the patch carries no changes.
func (u *ItemUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Summary == nil &&
		u.Priority == nil && u.Complexity == nil && u.RequiresVerification == nil &&
		u.Metadata == nil && u.Tags == nil && u.Role == nil &&
		u.PreviousRole == nil && !u.ClearPreviousRole &&
		u.StatusLabel == nil && u.RoleChangedAt == nil
}
