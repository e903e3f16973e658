package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/loomhq/loom/internal/types"
)

// nextItemArgs is the parameter surface of the get_next_item tool.
type nextItemArgs struct {
	ParentID         string `json:"parentId,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	IncludeDetails   bool   `json:"includeDetails,omitempty"`
	IncludeAncestors bool   `json:"includeAncestors,omitempty"`
}

// Recommendation is one recommended item with its requested expansions.
type Recommendation struct {
	Item         *types.WorkItem     `json:"item"`
	Ancestors    []*types.WorkItem   `json:"ancestors,omitempty"`
	Notes        []*types.Note       `json:"notes,omitempty"`
	Dependencies []*types.Dependency `json:"dependencies,omitempty"`
}

// NextItem recommends what to work on: queue items in scope that no
// unsatisfied dependency holds back, ranked by priority, then complexity
// (unknown complexity last), then age.
func (s *Service) NextItem(ctx context.Context, raw json.RawMessage) *Envelope {
	var args nextItemArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = DefaultNextLimit
	}
	if limit > MaxNextLimit {
		return s.fail(validationf("limit must be between 1 and %d (got %d)", MaxNextLimit, args.Limit))
	}

	parentID, err := optionalUUID("parentId", args.ParentID)
	if err != nil {
		return s.fail(err)
	}
	if parentID != "" {
		if _, err := s.store.GetItem(ctx, parentID); err != nil {
			return s.fail(err)
		}
	}

	ready, err := s.readyItems(ctx, parentID, s.nextCandidateCap)
	if err != nil {
		return s.fail(err)
	}
	rankReady(ready)
	if len(ready) > limit {
		ready = ready[:limit]
	}

	views := make([]Recommendation, len(ready))
	ids := make([]string, len(ready))
	for i, it := range ready {
		views[i] = Recommendation{Item: it}
		ids[i] = it.ID
	}

	if args.IncludeAncestors && len(ids) > 0 {
		chains, err := s.store.AncestorChains(ctx, ids)
		if err != nil {
			return s.fail(err)
		}
		for i := range views {
			views[i].Ancestors = chains[views[i].Item.ID]
		}
	}
	if args.IncludeDetails {
		for i := range views {
			notes, err := s.store.ListNotesForItem(ctx, views[i].Item.ID, nil)
			if err != nil {
				return s.fail(err)
			}
			edges, err := s.store.ListDependenciesForItem(ctx, views[i].Item.ID)
			if err != nil {
				return s.fail(err)
			}
			views[i].Notes = notes
			views[i].Dependencies = edges
		}
	}

	message := "no items ready"
	if len(views) > 0 {
		message = fmt.Sprintf("%d item(s) ready", len(views))
	}
	return s.ok(message, map[string]any{
		"items": views,
		"count": len(views),
	})
}

// readyItems returns queue items in scope with every gating edge satisfied,
// oldest first. At most maxCandidates queue items are considered before the
// dependency filter runs.
func (s *Service) readyItems(ctx context.Context, parentID string, maxCandidates int) ([]*types.WorkItem, error) {
	var candidates []*types.WorkItem
	if parentID == "" {
		queue := types.RoleQueue
		var err error
		candidates, err = s.store.ListItems(ctx, types.ItemFilter{
			Role:      &queue,
			SortBy:    types.SortByCreated,
			SortOrder: types.SortAsc,
			Limit:     maxCandidates,
		})
		if err != nil {
			return nil, err
		}
	} else {
		subtree, err := s.store.ListDescendants(ctx, parentID)
		if err != nil {
			return nil, err
		}
		for _, it := range subtree {
			if it.Role != types.RoleQueue {
				continue
			}
			candidates = append(candidates, it)
			if len(candidates) >= maxCandidates {
				break
			}
		}
	}
	return s.deps.FilterUnblocked(ctx, candidates)
}

// rankReady orders candidates by priority, complexity ascending with unknown
// complexity last, then creation time, then id as the final tiebreak.
func rankReady(items []*types.WorkItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
			return ar < br
		}
		switch {
		case a.Complexity != nil && b.Complexity != nil:
			if *a.Complexity != *b.Complexity {
				return *a.Complexity < *b.Complexity
			}
		case a.Complexity != nil:
			return true
		case b.Complexity != nil:
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
