package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/loomhq/loom/internal/storage"
)

// wrapDBError wraps a database error with operation context, translating
// driver-level failures into the storage sentinels callers check with
// errors.Is: sql.ErrNoRows becomes storage.ErrNotFound, UNIQUE violations
// become storage.ErrDuplicate, and FOREIGN KEY violations become
// storage.ErrNotFound since the referenced row no longer exists.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrDuplicate, err)
	}
	if isForeignKeyConstraintError(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueConstraintError checks if an error is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyConstraintError checks if an error is a FOREIGN KEY constraint
// violation, e.g. inserting an edge whose endpoint row is gone.
func isForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "foreign key constraint failed")
}

// isBusyError checks if an error is SQLITE_BUSY lock contention.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database is locked")
}

// beginImmediateWithRetry starts an IMMEDIATE transaction on the connection,
// retrying SQLITE_BUSY with exponential backoff. IMMEDIATE acquires the
// write lock up front, which serializes writers instead of letting them
// deadlock mid-transaction.
//
// Raw Exec is used instead of BeginTx because database/sql has no notion of
// transaction modes and the driver's BeginTx always runs DEFERRED.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, maxRetries uint64, initialInterval time.Duration) error {
	// BackOff implementations are stateful; always build a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}
