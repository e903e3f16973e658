package sqlite

import (
	"context"
	"strings"

	"github.com/loomhq/loom/internal/types"
)

// buildFilterWhere turns an ItemFilter into WHERE clauses and args.
// Clauses AND together; the tags clause ORs its tags internally.
func buildFilterWhere(filter types.ItemFilter) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.ParentID != nil {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, *filter.ParentID)
	}
	if filter.Depth != nil {
		clauses = append(clauses, "depth = ?")
		args = append(args, *filter.Depth)
	}
	if filter.Role != nil {
		clauses = append(clauses, "role = ?")
		args = append(args, string(*filter.Role))
	}
	if filter.Priority != nil {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(*filter.Priority))
	}
	if len(filter.Tags) > 0 {
		// Tags are stored comma-joined; a tag matches as the whole value or
		// delimited at either end. Tag syntax excludes LIKE wildcards.
		var tagClauses []string
		for _, tag := range filter.Tags {
			tagClauses = append(tagClauses, "(tags = ? OR tags LIKE ? OR tags LIKE ? OR tags LIKE ?)")
			args = append(args, tag, tag+",%", "%,"+tag, "%,"+tag+",%")
		}
		clauses = append(clauses, "("+strings.Join(tagClauses, " OR ")+")")
	}
	if filter.Query != "" {
		needle := strings.ToLower(filter.Query)
		clauses = append(clauses, "(instr(lower(title), ?) > 0 OR instr(lower(summary), ?) > 0)")
		args = append(args, needle, needle)
	}
	if filter.CreatedAfter != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *filter.CreatedBefore)
	}
	if filter.ModifiedAfter != nil {
		clauses = append(clauses, "modified_at >= ?")
		args = append(args, *filter.ModifiedAfter)
	}
	if filter.ModifiedBefore != nil {
		clauses = append(clauses, "modified_at <= ?")
		args = append(args, *filter.ModifiedBefore)
	}
	if filter.RoleChangedAfter != nil {
		clauses = append(clauses, "role_changed_at >= ?")
		args = append(args, *filter.RoleChangedAfter)
	}
	if filter.RoleChangedBefore != nil {
		clauses = append(clauses, "role_changed_at <= ?")
		args = append(args, *filter.RoleChangedBefore)
	}

	return clauses, args
}

// orderClause maps the normalized sort vocabulary to SQL. Priority sorts by
// rank (high first under asc); ties break on created_at descending, then id
// for a stable order.
func orderClause(sortBy, sortOrder string) string {
	dir := "DESC"
	if types.NormalizeSortOrder(sortOrder) == types.SortAsc {
		dir = "ASC"
	}
	switch types.NormalizeSortBy(sortBy) {
	case types.SortByModified:
		return "ORDER BY modified_at " + dir + ", id"
	case types.SortByPriority:
		return "ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END " + dir + ", created_at DESC, id"
	default:
		return "ORDER BY created_at " + dir + ", id"
	}
}

// ListItems returns items matching the filter, sorted and paginated.
func (s *Store) ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error) {
	clauses, args := buildFilterWhere(filter)

	query := `SELECT ` + itemColumns + ` FROM work_items`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " " + orderClause(filter.SortBy, filter.SortOrder)

	// LIMIT -1 means unbounded, which OFFSET requires to be present.
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list items", err)
	}
	return collectItems(rows)
}

// CountByFilter counts items matching the filter, ignoring pagination.
func (s *Store) CountByFilter(ctx context.Context, filter types.ItemFilter) (int, error) {
	clauses, args := buildFilterWhere(filter)

	query := `SELECT COUNT(*) FROM work_items`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, wrapDBError("count items by filter", err)
	}
	return count, nil
}

// SearchItems finds items whose title or summary contains the query,
// case-insensitively, newest first.
func (s *Store) SearchItems(ctx context.Context, query string, limit int) ([]*types.WorkItem, error) {
	return s.ListItems(ctx, types.ItemFilter{
		Query: query,
		Limit: limit,
	})
}

// CountItems returns the total number of work items.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_items`).Scan(&count); err != nil {
		return 0, wrapDBError("count items", err)
	}
	return count, nil
}

// CountByRole tallies all items per role.
func (s *Store) CountByRole(ctx context.Context) (map[types.Role]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM work_items GROUP BY role`)
	if err != nil {
		return nil, wrapDBError("count by role", err)
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
