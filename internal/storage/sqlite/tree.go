package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loomhq/loom/internal/types"
)

// maxAncestorHops bounds the upward walk in AncestorChains. Tree depth is
// capped well below this at creation time; the bound only guards against a
// corrupted parent_id loop.
const maxAncestorHops = 100

// ListChildren returns the direct children of parentID in creation order.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*types.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM work_items
		WHERE parent_id = ?
		ORDER BY created_at, id
	`, parentID)
	if err != nil {
		return nil, wrapDBError("list children", err)
	}
	return collectItems(rows)
}

// CountChildrenByRole tallies the direct children of parentID per role.
func (s *Store) CountChildrenByRole(ctx context.Context, parentID string) (map[types.Role]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, COUNT(*) FROM work_items
		WHERE parent_id = ?
		GROUP BY role
	`, parentID)
	if err != nil {
		return nil, wrapDBError("count children by role", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[types.Role]int)
	for rows.Next() {
		var role types.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, wrapDBError("scan role count", err)
		}
		counts[role] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate role counts", err)
	}
	return counts, nil
}

// ListRoots returns all depth-0 items, newest first.
func (s *Store) ListRoots(ctx context.Context) ([]*types.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM work_items
		WHERE parent_id IS NULL
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, wrapDBError("list roots", err)
	}
	return collectItems(rows)
}

// ListDescendants returns the subtree under rootID, breadth-first order
// (level by level, creation order within a level). The root itself is
// excluded. A missing root yields an empty result, not an error.
func (s *Store) ListDescendants(ctx context.Context, rootID string) ([]*types.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE subtree(id, lvl) AS (
			SELECT id, 0 FROM work_items WHERE id = ?
			UNION ALL
			SELECT w.id, s.lvl + 1
			FROM work_items w
			JOIN subtree s ON w.parent_id = s.id
			WHERE s.lvl < 50
		)
		SELECT `+itemColumns+` FROM work_items
		WHERE id IN (SELECT id FROM subtree WHERE lvl > 0)
		ORDER BY depth, created_at, id
	`, rootID)
	if err != nil {
		return nil, wrapDBError("list descendants", err)
	}
	return collectItems(rows)
}

// AncestorChains resolves, for each requested id, the ancestor path
// [root, ..., direct parent]. Roots map to an empty chain; unknown ids are
// omitted from the result. The walk loads whole generations at a time, so
// the number of queries is bounded by tree depth, not batch size.
func (s *Store) AncestorChains(ctx context.Context, ids []string) (map[string][]*types.WorkItem, error) {
	if len(ids) == 0 {
		return map[string][]*types.WorkItem{}, nil
	}

	loaded := make(map[string]*types.WorkItem)

	fetch := func(batch []string) error {
		items, err := getItemsByIDs(ctx, s.db, batch)
		if err != nil {
			return err
		}
		for _, item := range items {
			loaded[item.ID] = item
		}
		return nil
	}

	if err := fetch(ids); err != nil {
		return nil, err
	}

	// Walk upward a generation at a time until every parent is loaded.
	for hops := 0; ; hops++ {
		if hops >= maxAncestorHops {
			return nil, fmt.Errorf("ancestor chain exceeds %d hops; parent links may be cyclic", maxAncestorHops)
		}
		var missing []string
		seen := make(map[string]bool)
		for _, item := range loaded {
			if item.ParentID == nil {
				continue
			}
			pid := *item.ParentID
			if _, ok := loaded[pid]; !ok && !seen[pid] {
				seen[pid] = true
				missing = append(missing, pid)
			}
		}
		if len(missing) == 0 {
			break
		}
		if err := fetch(missing); err != nil {
			return nil, err
		}
	}

	chains := make(map[string][]*types.WorkItem, len(ids))
	for _, id := range ids {
		item, ok := loaded[id]
		if !ok {
			continue
		}
		var chain []*types.WorkItem
		cur := item
		for cur.ParentID != nil {
			parent, ok := loaded[*cur.ParentID]
			if !ok {
				break // dangling parent link; return the partial chain
			}
			chain = append(chain, parent)
			cur = parent
			if len(chain) >= maxAncestorHops {
				return nil, fmt.Errorf("ancestor chain exceeds %d hops; parent links may be cyclic", maxAncestorHops)
			}
		}
		// chain is [parent, grandparent, ..., root]; reverse in place.
		for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
			chain[i], chain[j] = chain[j], chain[i]
		}
		chains[id] = chain
	}
	return chains, nil
}

// collectItems drains rows into a slice, closing them.
func collectItems(rows *sql.Rows) ([]*types.WorkItem, error) {
	defer func() { _ = rows.Close() }()

	var items []*types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapDBError("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate items", err)
	}
	return items, nil
}
