package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

// newTestStore creates a Store backed by a temp-dir database.
//
// Test isolation: a plain ":memory:" database is shared across every
// connection in the process (cache=shared), which makes sequential tests
// bleed into each other. Temp files avoid that and exercise the same WAL
// path production uses.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()
	store, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("failed to close test database: %v", cerr)
		}
	})

	return store
}

// newTestItem builds a valid root item with a fresh id.
func newTestItem(title string) *types.WorkItem {
	return &types.WorkItem{
		ID:       uuid.NewString(),
		Title:    title,
		Role:     types.RoleQueue,
		Priority: types.PriorityMedium,
	}
}

// newTestChild builds a valid child item under the given parent.
func newTestChild(title string, parent *types.WorkItem) *types.WorkItem {
	item := newTestItem(title)
	item.ParentID = &parent.ID
	item.Depth = parent.Depth + 1
	return item
}

func TestNewInitializesSchema(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.CountItems(ctx)
	if err != nil {
		t.Fatalf("CountItems on fresh store failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty store, got %d items", count)
	}

	version, err := store.GetMetadata(ctx, "schema_version")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if version != "1" {
		t.Errorf("expected schema_version 1, got %q", version)
	}
}

func TestWALModeIsEnabled(t *testing.T) {
	store := newTestStore(t)

	var journalMode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected journal_mode=wal, got %q", journalMode)
	}
}

func TestDataVisibleAfterReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store1, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	item := newTestItem("Survives reopen")
	if err := store1.CreateItem(ctx, item); err != nil {
		store1.Close()
		t.Fatalf("CreateItem failed: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store2, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store2.Close()

	found, err := store2.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem after reopen failed: %v", err)
	}
	if found.Title != "Survives reopen" {
		t.Errorf("wrong title after reopen: got %q", found.Title)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping concurrency test in short mode")
	}

	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := store.CreateItem(ctx, newTestItem(fmt.Sprintf("Initial %d", i))); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}
	}

	const numReaders = 10
	const numWriters = 2
	const opsPerWorker = 50

	var wg sync.WaitGroup
	var readErrors, writeErrors atomic.Int64

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerWorker; j++ {
				if _, err := store.ListItems(ctx, types.ItemFilter{}); err != nil {
					readErrors.Add(1)
				}
			}
		}()
	}

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < opsPerWorker; j++ {
				item := newTestItem(fmt.Sprintf("Writer %d item %d", writerID, j))
				if err := store.CreateItem(ctx, item); err != nil {
					writeErrors.Add(1)
					t.Logf("writer %d: %v", writerID, err)
				}
			}
		}(i)
	}

	wg.Wait()

	if n := readErrors.Load(); n != 0 {
		t.Errorf("%d reads failed", n)
	}
	if n := writeErrors.Load(); n != 0 {
		t.Errorf("%d writes failed", n)
	}

	count, err := store.CountItems(ctx)
	if err != nil {
		t.Fatalf("CountItems failed: %v", err)
	}
	want := 10 + numWriters*opsPerWorker
	if count != want {
		t.Errorf("expected %d items, got %d", want, count)
	}
}

func TestRunInTransactionCommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := newTestItem("Committed")
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		// Read-your-writes inside the transaction.
		got, err := tx.GetItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if got.Title != "Committed" {
			return fmt.Errorf("read-your-writes returned %q", got.Title)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTransaction failed: %v", err)
	}

	if _, err := store.GetItem(ctx, item.ID); err != nil {
		t.Errorf("item not visible after commit: %v", err)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := newTestItem("Doomed")
	sentinel := fmt.Errorf("abort")
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	if _, err := store.GetItem(ctx, item.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after rollback, got %v", err)
	}
}

func TestRunInTransactionRollsBackOnPanic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := newTestItem("Panicked")
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			if err := tx.CreateItem(ctx, item); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	if _, err := store.GetItem(ctx, item.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after panic rollback, got %v", err)
	}
}
