package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loomhq/loom/internal/types"
)

// Search pagination bounds.
const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
	defaultRecentLimit = 5
)

// queryItemsArgs is the parameter surface of the query_items tool.
type queryItemsArgs struct {
	Op string `json:"op"`

	// get
	ID                  string `json:"id,omitempty"`
	IncludeChildren     bool   `json:"includeChildren,omitempty"`
	IncludeAncestors    bool   `json:"includeAncestors,omitempty"`
	IncludeNotes        bool   `json:"includeNotes,omitempty"`
	IncludeDependencies bool   `json:"includeDependencies,omitempty"`
	IncludeTransitions  bool   `json:"includeTransitions,omitempty"`

	// search
	Query             string   `json:"query,omitempty"`
	ParentID          string   `json:"parentId,omitempty"`
	Depth             *int     `json:"depth,omitempty"`
	Role              string   `json:"role,omitempty"`
	Priority          string   `json:"priority,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	CreatedAfter      string   `json:"createdAfter,omitempty"`
	CreatedBefore     string   `json:"createdBefore,omitempty"`
	ModifiedAfter     string   `json:"modifiedAfter,omitempty"`
	ModifiedBefore    string   `json:"modifiedBefore,omitempty"`
	RoleChangedAfter  string   `json:"roleChangedAfter,omitempty"`
	RoleChangedBefore string   `json:"roleChangedBefore,omitempty"`
	SortBy            string   `json:"sortBy,omitempty"`
	SortOrder         string   `json:"sortOrder,omitempty"`
	Limit             int      `json:"limit,omitempty"`
	Offset            int      `json:"offset,omitempty"`

	// overview
	RecentLimit int `json:"recentLimit,omitempty"`
}

// QueryItems dispatches the query_items tool: get one item with optional
// expansions, search the filter surface, or produce the aggregate overview.
func (s *Service) QueryItems(ctx context.Context, raw json.RawMessage) *Envelope {
	var args queryItemsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}

	switch args.Op {
	case "get":
		return s.getItem(ctx, &args)
	case "search":
		return s.searchItems(ctx, &args)
	case "overview":
		return s.overview(ctx, &args)
	default:
		return s.fail(validationf("op must be one of get, search, overview (got %q)", args.Op))
	}
}

// getItem fetches one item and the requested expansions.
func (s *Service) getItem(ctx context.Context, args *queryItemsArgs) *Envelope {
	id, err := requireUUID("id", args.ID)
	if err != nil {
		return s.fail(err)
	}
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return s.fail(err)
	}

	data := map[string]any{"item": item}

	if args.IncludeChildren {
		children, err := s.store.ListChildren(ctx, id)
		if err != nil {
			return s.fail(err)
		}
		data["children"] = children
	}
	if args.IncludeAncestors {
		chains, err := s.store.AncestorChains(ctx, []string{id})
		if err != nil {
			return s.fail(err)
		}
		data["ancestors"] = chains[id]
	}
	if args.IncludeNotes {
		notes, err := s.store.ListNotesForItem(ctx, id, nil)
		if err != nil {
			return s.fail(err)
		}
		data["notes"] = notes
	}
	if args.IncludeDependencies {
		edges, err := s.store.ListDependenciesForItem(ctx, id)
		if err != nil {
			return s.fail(err)
		}
		data["dependencies"] = edges
	}
	if args.IncludeTransitions {
		transitions, err := s.store.ListTransitionsForItem(ctx, id)
		if err != nil {
			return s.fail(err)
		}
		data["transitions"] = transitions
	}

	return s.ok("", data)
}

// buildFilter converts search arguments into an ItemFilter, validating
// vocabulary fields and RFC 3339 timestamps.
func buildFilter(args *queryItemsArgs) (types.ItemFilter, error) {
	filter := types.ItemFilter{
		Query:     args.Query,
		Depth:     args.Depth,
		SortBy:    types.NormalizeSortBy(args.SortBy),
		SortOrder: types.NormalizeSortOrder(args.SortOrder),
		Offset:    args.Offset,
	}

	if args.ParentID != "" {
		id, err := requireUUID("parentId", args.ParentID)
		if err != nil {
			return filter, err
		}
		filter.ParentID = &id
	}
	if args.Role != "" {
		role := types.Role(args.Role)
		if !role.IsValid() {
			return filter, validationf("role must be one of queue, work, review, terminal, blocked (got %q)", args.Role)
		}
		filter.Role = &role
	}
	if args.Priority != "" {
		priority := types.Priority(args.Priority)
		if !priority.IsValid() {
			return filter, validationf("priority must be one of high, medium, low (got %q)", args.Priority)
		}
		filter.Priority = &priority
	}
	if len(args.Tags) > 0 {
		normalized, err := types.NormalizeTags(args.Tags)
		if err != nil {
			return filter, &ValidationError{Message: err.Error()}
		}
		filter.Tags = types.SplitTags(normalized)
	}

	for _, bound := range []struct {
		name  string
		value string
		dst   **time.Time
	}{
		{"createdAfter", args.CreatedAfter, &filter.CreatedAfter},
		{"createdBefore", args.CreatedBefore, &filter.CreatedBefore},
		{"modifiedAfter", args.ModifiedAfter, &filter.ModifiedAfter},
		{"modifiedBefore", args.ModifiedBefore, &filter.ModifiedBefore},
		{"roleChangedAfter", args.RoleChangedAfter, &filter.RoleChangedAfter},
		{"roleChangedBefore", args.RoleChangedBefore, &filter.RoleChangedBefore},
	} {
		if bound.value == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, bound.value)
		if err != nil {
			return filter, validationf("%s must be an RFC 3339 timestamp (got %q)", bound.name, bound.value)
		}
		*bound.dst = &ts
	}

	filter.Limit = args.Limit
	if filter.Limit <= 0 {
		filter.Limit = defaultSearchLimit
	}
	if filter.Limit > maxSearchLimit {
		filter.Limit = maxSearchLimit
	}
	return filter, nil
}

// searchItems lists items through the conjunctive filter surface and
// reports the unpaginated total alongside the page.
func (s *Service) searchItems(ctx context.Context, args *queryItemsArgs) *Envelope {
	filter, err := buildFilter(args)
	if err != nil {
		return s.fail(err)
	}
	items, err := s.store.ListItems(ctx, filter)
	if err != nil {
		return s.fail(err)
	}
	total, err := s.store.CountByFilter(ctx, filter)
	if err != nil {
		return s.fail(err)
	}
	return s.ok("", map[string]any{
		"items": items,
		"count": len(items),
		"total": total,
	})
}

// overview aggregates role counts, ready and blocked totals, per-root child
// progress and recently modified items into one snapshot.
func (s *Service) overview(ctx context.Context, args *queryItemsArgs) *Envelope {
	byRole, err := s.store.CountByRole(ctx)
	if err != nil {
		return s.fail(err)
	}
	total := 0
	for _, n := range byRole {
		total += n
	}

	ready, err := s.readyItems(ctx, "", s.nextCandidateCap)
	if err != nil {
		return s.fail(err)
	}
	blocked, err := s.deps.ListBlocked(ctx)
	if err != nil {
		return s.fail(err)
	}

	roots, err := s.store.ListRoots(ctx)
	if err != nil {
		return s.fail(err)
	}
	progress := make([]types.RootProgress, 0, len(roots))
	for _, root := range roots {
		counts, err := s.store.CountChildrenByRole(ctx, root.ID)
		if err != nil {
			return s.fail(err)
		}
		children := 0
		for _, n := range counts {
			children += n
		}
		progress = append(progress, types.RootProgress{
			Item:             root,
			ChildCount:       children,
			TerminalChildren: counts[types.RoleTerminal],
		})
	}

	recentLimit := args.RecentLimit
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	recent, err := s.store.ListItems(ctx, types.ItemFilter{
		SortBy:    types.SortByModified,
		SortOrder: types.SortDesc,
		Limit:     recentLimit,
	})
	if err != nil {
		return s.fail(err)
	}

	overview := &types.Overview{
		TotalItems:   total,
		ByRole:       byRole,
		ReadyCount:   len(ready),
		BlockedCount: len(blocked),
		Roots:        progress,
		RecentItems:  recent,
	}
	message := fmt.Sprintf("%d item(s): %d ready, %d blocked", total, len(ready), len(blocked))
	return s.ok(message, overview)
}
