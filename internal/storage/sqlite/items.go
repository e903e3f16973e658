package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

// itemColumns is the canonical column list; scanItem expects this order.
const itemColumns = `id, parent_id, title, description, summary, role, previous_role,
       status_label, priority, complexity, requires_verification, depth,
       metadata, tags, created_at, modified_at, role_changed_at, version`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanItem reads one work_items row in itemColumns order.
func scanItem(s scanner) (*types.WorkItem, error) {
	var item types.WorkItem
	var parentID sql.NullString
	var previousRole sql.NullString
	var complexity sql.NullInt64
	var requiresVerification int

	err := s.Scan(
		&item.ID, &parentID, &item.Title, &item.Description, &item.Summary,
		&item.Role, &previousRole, &item.StatusLabel, &item.Priority,
		&complexity, &requiresVerification, &item.Depth,
		&item.Metadata, &item.Tags,
		&item.CreatedAt, &item.ModifiedAt, &item.RoleChangedAt, &item.Version,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		item.ParentID = &parentID.String
	}
	if previousRole.Valid {
		role := types.Role(previousRole.String)
		item.PreviousRole = &role
	}
	if complexity.Valid {
		c := int(complexity.Int64)
		item.Complexity = &c
	}
	item.RequiresVerification = requiresVerification != 0

	return &item, nil
}

// itemInsertArgs flattens an item into the insert argument order.
func itemInsertArgs(item *types.WorkItem) []interface{} {
	var previousRole interface{}
	if item.PreviousRole != nil {
		previousRole = string(*item.PreviousRole)
	}
	var complexity interface{}
	if item.Complexity != nil {
		complexity = *item.Complexity
	}
	requiresVerification := 0
	if item.RequiresVerification {
		requiresVerification = 1
	}
	var parentID interface{}
	if item.ParentID != nil {
		parentID = *item.ParentID
	}
	return []interface{}{
		item.ID, parentID, item.Title, item.Description, item.Summary,
		string(item.Role), previousRole, item.StatusLabel, string(item.Priority),
		complexity, requiresVerification, item.Depth,
		item.Metadata, item.Tags,
		item.CreatedAt, item.ModifiedAt, item.RoleChangedAt, item.Version,
	}
}

const itemInsertSQL = `
	INSERT INTO work_items (
		id, parent_id, title, description, summary, role, previous_role,
		status_label, priority, complexity, requires_verification, depth,
		metadata, tags, created_at, modified_at, role_changed_at, version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// prepareNewItem fills creation defaults and validates the result.
func prepareNewItem(item *types.WorkItem, now time.Time) error {
	if item.ID == "" {
		return fmt.Errorf("item id is required")
	}
	if item.Role == "" {
		item.Role = types.RoleQueue
	}
	if item.Priority == "" {
		item.Priority = types.PriorityMedium
	}
	if item.Version == 0 {
		item.Version = 1
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.ModifiedAt.IsZero() {
		item.ModifiedAt = now
	}
	if item.RoleChangedAt.IsZero() {
		item.RoleChangedAt = item.CreatedAt
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// insertItem inserts a single work item.
func insertItem(ctx context.Context, q dbtx, item *types.WorkItem) error {
	if err := prepareNewItem(item, time.Now()); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, itemInsertSQL, itemInsertArgs(item)...)
	if err != nil {
		return wrapDBError("insert item", err)
	}
	return nil
}

// insertItems bulk inserts work items using a prepared statement. Parents
// must precede their children so the parent_id foreign key resolves.
func insertItems(ctx context.Context, q dbtx, items []*types.WorkItem) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now()
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if err := prepareNewItem(item, now); err != nil {
			return err
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate item id within batch: %s", item.ID)
		}
		seen[item.ID] = true
	}

	stmt, err := q.PrepareContext(ctx, itemInsertSQL)
	if err != nil {
		return wrapDBError("prepare item insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, itemInsertArgs(item)...); err != nil {
			return wrapDBError(fmt.Sprintf("insert item %s", item.ID), err)
		}
	}
	return nil
}

// getItem fetches one item by id, ErrNotFound when absent.
func getItem(ctx context.Context, q dbtx, id string) (*types.WorkItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, wrapDBError("get item", err)
	}
	return item, nil
}

// getItemsByIDs fetches the listed items; missing ids are silently absent
// from the result, which preserves input order for the ids that exist.
func getItemsByIDs(ctx context.Context, q dbtx, ids []string) ([]*types.WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + itemColumns + ` FROM work_items WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := q.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, wrapDBError("get items by ids", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*types.WorkItem, len(ids))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapDBError("scan item", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate items", err)
	}

	out := make([]*types.WorkItem, 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// validatePatch checks patch values against the same bounds Validate
// enforces on whole items, before any SQL runs.
func validatePatch(patch *types.ItemUpdate) error {
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return fmt.Errorf("title is required")
		}
		if len(*patch.Title) > types.MaxTitleLength {
			return fmt.Errorf("title must be %d characters or less (got %d)", types.MaxTitleLength, len(*patch.Title))
		}
	}
	if patch.Summary != nil && len(*patch.Summary) > types.MaxSummaryLength {
		return fmt.Errorf("summary must be %d characters or less (got %d)", types.MaxSummaryLength, len(*patch.Summary))
	}
	if patch.Priority != nil && !patch.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", *patch.Priority)
	}
	if patch.Complexity != nil && (*patch.Complexity < types.MinComplexity || *patch.Complexity > types.MaxComplexity) {
		return fmt.Errorf("complexity must be between %d and %d (got %d)", types.MinComplexity, types.MaxComplexity, *patch.Complexity)
	}
	if patch.Role != nil && !patch.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", *patch.Role)
	}
	if patch.PreviousRole != nil && !patch.PreviousRole.IsValid() {
		return fmt.Errorf("invalid previous role: %s", *patch.PreviousRole)
	}
	if patch.Tags != nil {
		for _, tag := range types.SplitTags(*patch.Tags) {
			if err := types.ValidateTag(tag); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateItem applies an optimistic patch: the UPDATE is guarded by the
// expected version, bumps it by one and refreshes modified_at. Zero rows
// affected means either the item is gone (ErrNotFound) or someone else won
// the version race (ErrConflict). Returns the updated row. Callers must run
// it inside a transaction so the read-back is consistent.
func updateItem(ctx context.Context, q dbtx, id string, version int, patch *types.ItemUpdate) (*types.WorkItem, error) {
	if patch == nil || patch.Empty() {
		return nil, fmt.Errorf("no fields to update")
	}
	if err := validatePatch(patch); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	setClauses := []string{"modified_at = ?", "version = version + 1"}
	args := []interface{}{now}

	if patch.Title != nil {
		setClauses = append(setClauses, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		setClauses = append(setClauses, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Summary != nil {
		setClauses = append(setClauses, "summary = ?")
		args = append(args, *patch.Summary)
	}
	if patch.Priority != nil {
		setClauses = append(setClauses, "priority = ?")
		args = append(args, string(*patch.Priority))
	}
	if patch.Complexity != nil {
		setClauses = append(setClauses, "complexity = ?")
		args = append(args, *patch.Complexity)
	}
	if patch.RequiresVerification != nil {
		rv := 0
		if *patch.RequiresVerification {
			rv = 1
		}
		setClauses = append(setClauses, "requires_verification = ?")
		args = append(args, rv)
	}
	if patch.Metadata != nil {
		setClauses = append(setClauses, "metadata = ?")
		args = append(args, *patch.Metadata)
	}
	if patch.Tags != nil {
		setClauses = append(setClauses, "tags = ?")
		args = append(args, *patch.Tags)
	}
	if patch.StatusLabel != nil {
		setClauses = append(setClauses, "status_label = ?")
		args = append(args, *patch.StatusLabel)
	}
	if patch.Role != nil {
		setClauses = append(setClauses, "role = ?")
		args = append(args, string(*patch.Role))

		roleChangedAt := now
		if patch.RoleChangedAt != nil {
			roleChangedAt = *patch.RoleChangedAt
		}
		setClauses = append(setClauses, "role_changed_at = ?")
		args = append(args, roleChangedAt)
	} else if patch.RoleChangedAt != nil {
		setClauses = append(setClauses, "role_changed_at = ?")
		args = append(args, *patch.RoleChangedAt)
	}
	switch {
	case patch.PreviousRole != nil:
		setClauses = append(setClauses, "previous_role = ?")
		args = append(args, string(*patch.PreviousRole))
	case patch.ClearPreviousRole:
		setClauses = append(setClauses, "previous_role = NULL")
	}

	args = append(args, id, version)

	query := fmt.Sprintf("UPDATE work_items SET %s WHERE id = ? AND version = ?", strings.Join(setClauses, ", ")) // #nosec G201 - controlled column names
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("update item", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, wrapDBError("check rows affected", err)
	}
	if affected == 0 {
		// Distinguish a vanished row from a lost version race.
		var current int
		err := q.QueryRowContext(ctx, `SELECT version FROM work_items WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("update item %s: %w", id, storage.ErrNotFound)
		}
		if err != nil {
			return nil, wrapDBError("check item version", err)
		}
		return nil, fmt.Errorf("update item %s: expected version %d, found %d: %w", id, version, current, storage.ErrConflict)
	}

	return getItem(ctx, q, id)
}

// deleteItem removes one item; children co-delete through the parent_id
// cascade. ErrNotFound when the id does not exist.
func deleteItem(ctx context.Context, q dbtx, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete item", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapDBError("check rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete item %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// deleteItems removes the listed items and reports how many rows vanished,
// descendants included. The subtree is counted before the delete because
// RowsAffected does not see cascade deletions.
func deleteItems(ctx context.Context, q dbtx, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ph := placeholders(len(ids))
	countQuery := `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM work_items WHERE id IN (` + ph + `)
			UNION
			SELECT w.id FROM work_items w JOIN subtree s ON w.parent_id = s.id
		)
		SELECT COUNT(*) FROM subtree
	`
	var count int
	if err := q.QueryRowContext(ctx, countQuery, toAnySlice(ids)...).Scan(&count); err != nil {
		return 0, wrapDBError("count subtree", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM work_items WHERE id IN (`+ph+`)`, toAnySlice(ids)...); err != nil {
		return 0, wrapDBError("delete items", err)
	}
	return count, nil
}

// CreateItem creates a new work item.
func (s *Store) CreateItem(ctx context.Context, item *types.WorkItem) error {
	return insertItem(ctx, s.db, item)
}

// CreateItems creates multiple work items atomically.
func (s *Store) CreateItems(ctx context.Context, items []*types.WorkItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertItems(ctx, tx, items)
	})
}

// GetItem retrieves a work item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return getItem(ctx, s.db, id)
}

// GetItemsByIDs retrieves the listed work items, skipping missing ids.
func (s *Store) GetItemsByIDs(ctx context.Context, ids []string) ([]*types.WorkItem, error) {
	return getItemsByIDs(ctx, s.db, ids)
}

// UpdateItem applies an optimistic patch and returns the updated item.
func (s *Store) UpdateItem(ctx context.Context, id string, version int, patch *types.ItemUpdate) (*types.WorkItem, error) {
	var updated *types.WorkItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = updateItem(ctx, tx, id, version, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteItem deletes a work item and, via cascade, its subtree.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return deleteItem(ctx, s.db, id)
}

// DeleteItems deletes the listed items, returning the total rows removed
// including cascade-deleted descendants.
func (s *Store) DeleteItems(ctx context.Context, ids []string) (int, error) {
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		count, err = deleteItems(ctx, tx, ids)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
