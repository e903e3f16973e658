package sqlite

import (
	"context"
	"time"

	"github.com/loomhq/loom/internal/types"
)

// appendTransition writes one audit row. The workflow engine calls this in
// the same transaction as the role change it records.
func appendTransition(ctx context.Context, q dbtx, tr *types.RoleTransition) error {
	if tr.OccurredAt.IsZero() {
		tr.OccurredAt = time.Now()
	}
	// "trigger" is a reserved word in SQLite.
	result, err := q.ExecContext(ctx, `
		INSERT INTO role_transitions (item_id, from_role, to_role, "trigger", summary, status_label, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tr.ItemID, string(tr.FromRole), string(tr.ToRole), string(tr.Trigger),
		tr.Summary, tr.StatusLabel, tr.OccurredAt)
	if err != nil {
		return wrapDBError("append transition", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		tr.ID = id
	}
	return nil
}

// AppendTransition appends a role transition audit record.
func (s *Store) AppendTransition(ctx context.Context, tr *types.RoleTransition) error {
	return appendTransition(ctx, s.db, tr)
}

// ListTransitionsForItem returns the item's audit trail, oldest first.
func (s *Store) ListTransitionsForItem(ctx context.Context, itemID string) ([]*types.RoleTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, from_role, to_role, "trigger", summary, status_label, occurred_at
		FROM role_transitions
		WHERE item_id = ?
		ORDER BY occurred_at, id
	`, itemID)
	if err != nil {
		return nil, wrapDBError("list transitions", err)
	}
	defer func() { _ = rows.Close() }()

	var transitions []*types.RoleTransition
	for rows.Next() {
		var tr types.RoleTransition
		if err := rows.Scan(&tr.ID, &tr.ItemID, &tr.FromRole, &tr.ToRole,
			&tr.Trigger, &tr.Summary, &tr.StatusLabel, &tr.OccurredAt); err != nil {
			return nil, wrapDBError("scan transition", err)
		}
		transitions = append(transitions, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate transitions", err)
	}
	return transitions, nil
}
