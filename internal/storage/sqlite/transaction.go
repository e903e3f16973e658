package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

// Verify sqliteTx implements storage.Transaction at compile time
var _ storage.Transaction = (*sqliteTx)(nil)

// sqliteTx implements the storage.Transaction interface for SQLite.
// It wraps a dedicated database connection with an active transaction.
type sqliteTx struct {
	conn *sql.Conn
}

// RunInTransaction executes a function within a database transaction.
//
// The transaction uses BEGIN IMMEDIATE to acquire the write lock early,
// preventing deadlocks when multiple goroutines compete for the same lock.
//
// Transaction lifecycle:
//  1. Acquire dedicated connection from the pool
//  2. Begin IMMEDIATE transaction with retry on SQLITE_BUSY
//  3. Execute the callback with the Transaction interface
//  4. On success: COMMIT
//  5. On error or panic: ROLLBACK
//
// Panic safety: if the callback panics, the transaction is rolled back
// and the panic is re-raised to the caller.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	// All statements in the transaction must run on the same connection;
	// the pool would otherwise spread them across connections.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Track commit state for cleanup. ROLLBACK runs on the background
	// context so cleanup completes even when ctx is already cancelled.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&sqliteTx{conn: conn}); err != nil {
		return err // rollback happens in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// CreateItem creates a work item within the transaction.
func (t *sqliteTx) CreateItem(ctx context.Context, item *types.WorkItem) error {
	return insertItem(ctx, t.conn, item)
}

// CreateItems creates multiple work items within the transaction.
func (t *sqliteTx) CreateItems(ctx context.Context, items []*types.WorkItem) error {
	return insertItems(ctx, t.conn, items)
}

// GetItem retrieves an item within the transaction, enabling
// read-your-writes semantics.
func (t *sqliteTx) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	return getItem(ctx, t.conn, id)
}

// UpdateItem applies an optimistic patch within the transaction.
func (t *sqliteTx) UpdateItem(ctx context.Context, id string, version int, patch *types.ItemUpdate) (*types.WorkItem, error) {
	return updateItem(ctx, t.conn, id, version, patch)
}

// DeleteItem deletes an item within the transaction.
func (t *sqliteTx) DeleteItem(ctx context.Context, id string) error {
	return deleteItem(ctx, t.conn, id)
}

// DeleteItems deletes the listed items within the transaction.
func (t *sqliteTx) DeleteItems(ctx context.Context, ids []string) (int, error) {
	return deleteItems(ctx, t.conn, ids)
}

// CreateDependency validates and inserts one edge within the transaction.
func (t *sqliteTx) CreateDependency(ctx context.Context, dep *types.Dependency) error {
	return createDependencies(ctx, t.conn, []*types.Dependency{dep})
}

// CreateDependencies validates and inserts a batch of edges within the
// transaction.
func (t *sqliteTx) CreateDependencies(ctx context.Context, deps []*types.Dependency) error {
	return createDependencies(ctx, t.conn, deps)
}

// DeleteDependenciesForItem removes every edge touching the item within
// the transaction.
func (t *sqliteTx) DeleteDependenciesForItem(ctx context.Context, itemID string) (int, error) {
	return deleteDependenciesForItem(ctx, t.conn, itemID)
}

// ListGatingEdges returns every gating edge visible to the transaction.
func (t *sqliteTx) ListGatingEdges(ctx context.Context) ([]*types.Dependency, error) {
	return listGatingEdges(ctx, t.conn)
}

// UpsertNote writes a note within the transaction.
func (t *sqliteTx) UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error) {
	return upsertNote(ctx, t.conn, note)
}

// DeleteNotesForItem removes every note on the item within the transaction.
func (t *sqliteTx) DeleteNotesForItem(ctx context.Context, itemID string) (int, error) {
	return deleteNotesForItem(ctx, t.conn, itemID)
}

// AppendTransition appends an audit record within the transaction.
func (t *sqliteTx) AppendTransition(ctx context.Context, tr *types.RoleTransition) error {
	return appendTransition(ctx, t.conn, tr)
}

// SetMetadata stores an internal key/value pair within the transaction.
func (t *sqliteTx) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, t.conn, key, value)
}

// GetMetadata reads an internal key within the transaction.
func (t *sqliteTx) GetMetadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, t.conn, key)
}
