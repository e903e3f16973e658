package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	depgraph "github.com/loomhq/loom/internal/deps"
	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

const depColumns = `id, from_item_id, to_item_id, type, unblock_at, created_at`

// scanDependency reads one dependencies row in depColumns order.
func scanDependency(s scanner) (*types.Dependency, error) {
	var dep types.Dependency
	var unblockAt sql.NullString

	err := s.Scan(&dep.ID, &dep.FromItemID, &dep.ToItemID, &dep.Type, &unblockAt, &dep.CreatedAt)
	if err != nil {
		return nil, err
	}
	if unblockAt.Valid {
		role := types.Role(unblockAt.String)
		dep.UnblockAt = &role
	}
	return &dep, nil
}

// collectDependencies drains rows into a slice, closing them.
func collectDependencies(rows *sql.Rows) ([]*types.Dependency, error) {
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		dep, err := scanDependency(rows)
		if err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		deps = append(deps, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate dependencies", err)
	}
	return deps, nil
}

// listGatingEdges returns every BLOCKS / IS_BLOCKED_BY edge.
func listGatingEdges(ctx context.Context, q dbtx) ([]*types.Dependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE type IN ('BLOCKS', 'IS_BLOCKED_BY')
	`)
	if err != nil {
		return nil, wrapDBError("list gating edges", err)
	}
	return collectDependencies(rows)
}

// createDependencies validates and inserts a batch of edges. All checks run
// against the same connection, so when called inside a transaction the whole
// batch admits or rejects atomically:
//
//  1. structural validation plus intra-batch duplicates,
//  2. both endpoints of every edge must exist,
//  3. no edge may duplicate a stored (from, to, type) row,
//  4. gating edges must leave the graph acyclic.
func createDependencies(ctx context.Context, q dbtx, deps []*types.Dependency) error {
	if len(deps) == 0 {
		return nil
	}

	if err := depgraph.ValidateBatch(deps); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Endpoint existence.
	idSet := make(map[string]bool, len(deps)*2)
	var ids []string
	for _, d := range deps {
		for _, id := range []string{d.FromItemID, d.ToItemID} {
			if !idSet[id] {
				idSet[id] = true
				ids = append(ids, id)
			}
		}
	}
	found, err := getItemsByIDs(ctx, q, ids)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(found))
	for _, item := range found {
		existing[item.ID] = true
	}
	for _, id := range ids {
		if !existing[id] {
			return fmt.Errorf("dependency endpoint %s: %w", id, storage.ErrNotFound)
		}
	}

	// Duplicates against stored rows.
	for _, d := range deps {
		var one int
		err := q.QueryRowContext(ctx, `
			SELECT 1 FROM dependencies
			WHERE from_item_id = ? AND to_item_id = ? AND type = ?
		`, d.FromItemID, d.ToItemID, string(d.Type)).Scan(&one)
		if err == nil {
			return fmt.Errorf("dependency %s %s %s: %w", d.FromItemID, d.Type, d.ToItemID, storage.ErrDuplicate)
		}
		if err != sql.ErrNoRows {
			return wrapDBError("check duplicate dependency", err)
		}
	}

	// Cycle detection over the combined gating graph.
	stored, err := listGatingEdges(ctx, q)
	if err != nil {
		return err
	}
	if path := depgraph.WouldCycle(stored, deps); path != nil {
		return fmt.Errorf("would create a cycle (%s): %w", strings.Join(path, " -> "), storage.ErrCycle)
	}

	// Insert.
	now := time.Now()
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO dependencies (id, from_item_id, to_item_id, type, unblock_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return wrapDBError("prepare dependency insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range deps {
		if d.ID == "" {
			return fmt.Errorf("dependency id is required")
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		var unblockAt interface{}
		if d.UnblockAt != nil {
			unblockAt = string(*d.UnblockAt)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.FromItemID, d.ToItemID, string(d.Type), unblockAt, d.CreatedAt); err != nil {
			return wrapDBError("insert dependency", err)
		}
	}
	return nil
}

// CreateDependency validates and inserts a single edge.
func (s *Store) CreateDependency(ctx context.Context, dep *types.Dependency) error {
	return s.CreateDependencies(ctx, []*types.Dependency{dep})
}

// CreateDependencies validates and inserts a batch of edges atomically.
func (s *Store) CreateDependencies(ctx context.Context, deps []*types.Dependency) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return createDependencies(ctx, tx, deps)
	})
}

// GetDependency retrieves an edge by id.
func (s *Store) GetDependency(ctx context.Context, id string) (*types.Dependency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+depColumns+` FROM dependencies WHERE id = ?`, id)
	dep, err := scanDependency(row)
	if err != nil {
		return nil, wrapDBError("get dependency", err)
	}
	return dep, nil
}

// DeleteDependency removes an edge by id, ErrNotFound when absent.
func (s *Store) DeleteDependency(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete dependency", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapDBError("check rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete dependency %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DeleteDependenciesByEndpoints removes edges between two items, optionally
// narrowed to one type, and returns how many rows were removed.
func (s *Store) DeleteDependenciesByEndpoints(ctx context.Context, fromID, toID string, depType *types.DependencyType) (int, error) {
	query := `DELETE FROM dependencies WHERE from_item_id = ? AND to_item_id = ?`
	args := []interface{}{fromID, toID}
	if depType != nil {
		query += ` AND type = ?`
		args = append(args, string(*depType))
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapDBError("delete dependencies by endpoints", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, wrapDBError("check rows affected", err)
	}
	return int(affected), nil
}

// deleteDependenciesForItem removes every edge touching the item.
func deleteDependenciesForItem(ctx context.Context, q dbtx, itemID string) (int, error) {
	result, err := q.ExecContext(ctx, `
		DELETE FROM dependencies WHERE from_item_id = ? OR to_item_id = ?
	`, itemID, itemID)
	if err != nil {
		return 0, wrapDBError("delete dependencies for item", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, wrapDBError("check rows affected", err)
	}
	return int(affected), nil
}

// DeleteDependenciesForItem removes every edge touching the item and
// returns the removed count.
func (s *Store) DeleteDependenciesForItem(ctx context.Context, itemID string) (int, error) {
	return deleteDependenciesForItem(ctx, s.db, itemID)
}

// ListDependenciesForItem returns edges where the item is either endpoint.
func (s *Store) ListDependenciesForItem(ctx context.Context, itemID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE from_item_id = ? OR to_item_id = ?
		ORDER BY created_at, id
	`, itemID, itemID)
	if err != nil {
		return nil, wrapDBError("list dependencies for item", err)
	}
	return collectDependencies(rows)
}

// ListDependenciesFrom returns edges originating at the item.
func (s *Store) ListDependenciesFrom(ctx context.Context, fromID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE from_item_id = ?
		ORDER BY created_at, id
	`, fromID)
	if err != nil {
		return nil, wrapDBError("list dependencies from item", err)
	}
	return collectDependencies(rows)
}

// ListDependenciesTo returns edges targeting the item.
func (s *Store) ListDependenciesTo(ctx context.Context, toID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE to_item_id = ?
		ORDER BY created_at, id
	`, toID)
	if err != nil {
		return nil, wrapDBError("list dependencies to item", err)
	}
	return collectDependencies(rows)
}

// ListDependenciesForItems returns edges touching any of the listed items.
func (s *Store) ListDependenciesForItems(ctx context.Context, itemIDs []string) ([]*types.Dependency, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	ph := placeholders(len(itemIDs))
	args := append(toAnySlice(itemIDs), toAnySlice(itemIDs)...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+depColumns+` FROM dependencies
		WHERE from_item_id IN (`+ph+`) OR to_item_id IN (`+ph+`)
		ORDER BY created_at, id
	`, args...)
	if err != nil {
		return nil, wrapDBError("list dependencies for items", err)
	}
	return collectDependencies(rows)
}

// ListGatingEdges returns every BLOCKS / IS_BLOCKED_BY edge in the store.
func (s *Store) ListGatingEdges(ctx context.Context) ([]*types.Dependency, error) {
	return listGatingEdges(ctx, s.db)
}
