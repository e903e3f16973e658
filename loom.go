// Package loom provides a minimal public API for embedding loom's storage
// layer in custom orchestration.
//
// Most integrations should talk to the MCP server instead (loom serve).
// This package exports only the types and constructors needed by Go
// programs that read or mutate a loom database in-process.
package loom

import (
	"context"

	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/storage/sqlite"
	"github.com/loomhq/loom/internal/types"
)

// Core types for working with items
type (
	WorkItem   = types.WorkItem
	Role       = types.Role
	Priority   = types.Priority
	Dependency = types.Dependency
	Note       = types.Note
	ItemFilter = types.ItemFilter
)

// Role constants
const (
	RoleQueue    = types.RoleQueue
	RoleWork     = types.RoleWork
	RoleReview   = types.RoleReview
	RoleTerminal = types.RoleTerminal
	RoleBlocked  = types.RoleBlocked
)

// Priority constants
const (
	PriorityHigh   = types.PriorityHigh
	PriorityMedium = types.PriorityMedium
	PriorityLow    = types.PriorityLow
)

// Storage is the full persistence interface over a loom database.
type Storage = storage.Storage

// Open opens a loom SQLite database for programmatic access, creating it
// and its schema when missing.
func Open(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// FindStateDir walks up from startDir looking for a .loom directory, the
// way the CLI locates its instance. The returned path may not exist yet.
func FindStateDir(startDir string) string {
	return config.FindStateDir(startDir)
}
