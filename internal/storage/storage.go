// Package storage defines the persistence interface for work items.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface and sentinel errors referenced by both the sqlite
// implementation and its consumers (engines, tool handlers, cmd/loom).
package storage

import (
	"context"
	"errors"

	"github.com/loomhq/loom/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an optimistic update loses the version race.
var ErrConflict = errors.New("version conflict")

// ErrDuplicate is returned when an insert violates a uniqueness constraint,
// e.g. a second (from, to, type) dependency row.
var ErrDuplicate = errors.New("duplicate")

// ErrCycle is returned when inserting dependency edges would close a cycle
// through the gating graph.
var ErrCycle = errors.New("dependency cycle")

// Storage is the interface satisfied by *sqlite.Store.
// Consumers depend on this interface rather than on the concrete type so that
// decorators (telemetry) and test doubles can be substituted.
type Storage interface {
	// Item CRUD
	CreateItem(ctx context.Context, item *types.WorkItem) error
	CreateItems(ctx context.Context, items []*types.WorkItem) error
	GetItem(ctx context.Context, id string) (*types.WorkItem, error)
	GetItemsByIDs(ctx context.Context, ids []string) ([]*types.WorkItem, error)
	// UpdateItem applies the patch when the stored version matches; it bumps
	// version by one, refreshes modifiedAt, and returns the updated item.
	// A missing row yields ErrNotFound, a version mismatch ErrConflict.
	UpdateItem(ctx context.Context, id string, version int, patch *types.ItemUpdate) (*types.WorkItem, error)
	DeleteItem(ctx context.Context, id string) error
	DeleteItems(ctx context.Context, ids []string) (int, error)

	// Tree reads
	ListChildren(ctx context.Context, parentID string) ([]*types.WorkItem, error)
	CountChildrenByRole(ctx context.Context, parentID string) (map[types.Role]int, error)
	ListRoots(ctx context.Context) ([]*types.WorkItem, error)
	// ListDescendants walks the subtree breadth-first, excluding the root itself.
	ListDescendants(ctx context.Context, rootID string) ([]*types.WorkItem, error)
	// AncestorChains resolves, for each id, the path [root, ..., direct parent].
	AncestorChains(ctx context.Context, ids []string) (map[string][]*types.WorkItem, error)

	// Filtered queries
	ListItems(ctx context.Context, filter types.ItemFilter) ([]*types.WorkItem, error)
	CountByFilter(ctx context.Context, filter types.ItemFilter) (int, error)
	SearchItems(ctx context.Context, query string, limit int) ([]*types.WorkItem, error)
	CountItems(ctx context.Context) (int, error)
	CountByRole(ctx context.Context) (map[types.Role]int, error)

	// Dependencies. Create operations validate structurally, reject
	// duplicates and run cycle detection inside a single transaction.
	CreateDependency(ctx context.Context, dep *types.Dependency) error
	CreateDependencies(ctx context.Context, deps []*types.Dependency) error
	GetDependency(ctx context.Context, id string) (*types.Dependency, error)
	DeleteDependency(ctx context.Context, id string) error
	DeleteDependenciesByEndpoints(ctx context.Context, fromID, toID string, depType *types.DependencyType) (int, error)
	DeleteDependenciesForItem(ctx context.Context, itemID string) (int, error)
	ListDependenciesForItem(ctx context.Context, itemID string) ([]*types.Dependency, error)
	ListDependenciesFrom(ctx context.Context, fromID string) ([]*types.Dependency, error)
	ListDependenciesTo(ctx context.Context, toID string) ([]*types.Dependency, error)
	ListDependenciesForItems(ctx context.Context, itemIDs []string) ([]*types.Dependency, error)
	// ListGatingEdges returns every BLOCKS / IS_BLOCKED_BY edge in the store.
	ListGatingEdges(ctx context.Context) ([]*types.Dependency, error)

	// Notes
	UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error)
	GetNote(ctx context.Context, id string) (*types.Note, error)
	GetNoteByItemAndKey(ctx context.Context, itemID, key string) (*types.Note, error)
	DeleteNote(ctx context.Context, id string) error
	DeleteNoteByItemAndKey(ctx context.Context, itemID, key string) error
	DeleteNotesForItem(ctx context.Context, itemID string) (int, error)
	ListNotesForItem(ctx context.Context, itemID string, role *types.Role) ([]*types.Note, error)

	// Role transition audit log
	AppendTransition(ctx context.Context, tr *types.RoleTransition) error
	ListTransitionsForItem(ctx context.Context, itemID string) ([]*types.RoleTransition, error)

	// Instance metadata (schema version, instance id)
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Path() string
	Close() error
}

// Transaction exposes the subset of storage operations available inside
// RunInTransaction. All calls share one database transaction: an error (or
// panic) from the callback rolls everything back, a nil return commits.
//
// Atomic flows built on this: work-tree creation (items + dependencies +
// notes), batch dependency insertion with cycle detection, and workflow
// transition application (item update + audit record).
type Transaction interface {
	// Item operations
	CreateItem(ctx context.Context, item *types.WorkItem) error
	CreateItems(ctx context.Context, items []*types.WorkItem) error
	GetItem(ctx context.Context, id string) (*types.WorkItem, error) // read-your-writes
	UpdateItem(ctx context.Context, id string, version int, patch *types.ItemUpdate) (*types.WorkItem, error)
	DeleteItem(ctx context.Context, id string) error
	DeleteItems(ctx context.Context, ids []string) (int, error)

	// Dependency operations
	CreateDependency(ctx context.Context, dep *types.Dependency) error
	CreateDependencies(ctx context.Context, deps []*types.Dependency) error
	DeleteDependenciesForItem(ctx context.Context, itemID string) (int, error)
	ListGatingEdges(ctx context.Context) ([]*types.Dependency, error)

	// Note operations
	UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error)
	DeleteNotesForItem(ctx context.Context, itemID string) (int, error)

	// Audit operations
	AppendTransition(ctx context.Context, tr *types.RoleTransition) error

	// Metadata operations
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)
}
