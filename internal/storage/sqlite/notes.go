package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

const noteColumns = `id, item_id, key, role, body, created_at, modified_at`

// scanNote reads one notes row in noteColumns order.
func scanNote(s scanner) (*types.Note, error) {
	var note types.Note
	err := s.Scan(&note.ID, &note.ItemID, &note.Key, &note.Role, &note.Body,
		&note.CreatedAt, &note.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// upsertNote inserts a note or, when (item_id, key) already exists, replaces
// its role and body in place. The stored id and created_at survive an
// update; only modified_at moves. Returns the canonical stored row.
func upsertNote(ctx context.Context, q dbtx, note *types.Note) (*types.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if note.ID == "" {
		return nil, fmt.Errorf("note id is required")
	}

	// The item must exist; the foreign key would catch this anyway but the
	// explicit check yields a useful not-found error instead of a constraint
	// failure.
	if _, err := getItem(ctx, q, note.ItemID); err != nil {
		return nil, err
	}

	now := time.Now()
	createdAt := note.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO notes (id, item_id, key, role, body, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, key) DO UPDATE SET
			role = excluded.role,
			body = excluded.body,
			modified_at = excluded.modified_at
	`, note.ID, note.ItemID, note.Key, string(note.Role), note.Body, createdAt, now)
	if err != nil {
		return nil, wrapDBError("upsert note", err)
	}

	row := q.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE item_id = ? AND key = ?
	`, note.ItemID, note.Key)
	stored, err := scanNote(row)
	if err != nil {
		return nil, wrapDBError("read back note", err)
	}
	return stored, nil
}

// UpsertNote writes a note, replacing any previous note with the same
// (itemId, key). Returns the stored row.
func (s *Store) UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error) {
	return upsertNote(ctx, s.db, note)
}

// GetNote retrieves a note by id.
func (s *Store) GetNote(ctx context.Context, id string) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if err != nil {
		return nil, wrapDBError("get note", err)
	}
	return note, nil
}

// GetNoteByItemAndKey retrieves a note by its natural key.
func (s *Store) GetNoteByItemAndKey(ctx context.Context, itemID, key string) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE item_id = ? AND key = ?
	`, itemID, key)
	note, err := scanNote(row)
	if err != nil {
		return nil, wrapDBError("get note by item and key", err)
	}
	return note, nil
}

// DeleteNote removes a note by id, ErrNotFound when absent.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete note", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapDBError("check rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete note %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// DeleteNoteByItemAndKey removes a note by its natural key.
func (s *Store) DeleteNoteByItemAndKey(ctx context.Context, itemID, key string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notes WHERE item_id = ? AND key = ?
	`, itemID, key)
	if err != nil {
		return wrapDBError("delete note by item and key", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapDBError("check rows affected", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete note %s/%s: %w", itemID, key, storage.ErrNotFound)
	}
	return nil
}

// deleteNotesForItem removes every note on the item.
func deleteNotesForItem(ctx context.Context, q dbtx, itemID string) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM notes WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, wrapDBError("delete notes for item", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, wrapDBError("check rows affected", err)
	}
	return int(affected), nil
}

// DeleteNotesForItem removes every note on the item, returning the count.
func (s *Store) DeleteNotesForItem(ctx context.Context, itemID string) (int, error) {
	return deleteNotesForItem(ctx, s.db, itemID)
}

// ListNotesForItem returns the item's notes in creation order, optionally
// narrowed to one role.
func (s *Store) ListNotesForItem(ctx context.Context, itemID string, role *types.Role) ([]*types.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE item_id = ?`
	args := []interface{}{itemID}
	if role != nil {
		query += ` AND role = ?`
		args = append(args, string(*role))
	}
	query += ` ORDER BY created_at, key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list notes for item", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []*types.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, wrapDBError("scan note", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate notes", err)
	}
	return notes, nil
}
