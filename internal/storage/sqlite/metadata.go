package sqlite

import (
	"context"
)

// setMetadata stores or replaces an internal key/value pair.
func setMetadata(ctx context.Context, q dbtx, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return wrapDBError("set metadata", err)
	}
	return nil
}

// getMetadata reads an internal key, ErrNotFound when absent.
func getMetadata(ctx context.Context, q dbtx, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", wrapDBError("get metadata", err)
	}
	return value, nil
}

// SetMetadata stores or replaces an internal key/value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, s.db, key, value)
}

// GetMetadata reads an internal key, ErrNotFound when absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, s.db, key)
}
