package main

import (
	"errors"
	"os"
	"time"

	"github.com/loomhq/loom/internal/deps"
	"github.com/loomhq/loom/internal/lockfile"
	"github.com/loomhq/loom/internal/noteschema"
	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/storage/sqlite"
	"github.com/loomhq/loom/internal/telemetry"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/workflow"
)

// openStore opens the configured database, telemetry-wrapped. Opening never
// creates the file: a missing database means init has not run here.
func openStore() storage.Storage {
	path := cfg.DBPath()
	if _, err := os.Stat(path); err != nil {
		fatalf("no loom database at %s (run 'loom init' first)", path)
	}
	store, err := sqlite.New(rootCtx, path)
	if err != nil {
		fatalf("failed to open %s: %v", path, err)
	}
	return telemetry.WrapStorage(store)
}

func closeStore(store storage.Storage) {
	if err := store.Close(); err != nil {
		fatalf("failed to close database: %v", err)
	}
}

// loadSchemas builds the note-schema registry from the built-ins plus the
// configured user registry file, when one exists.
func loadSchemas() *noteschema.Registry {
	registry, err := noteschema.NewRegistry(cfg.SchemasPath())
	if err != nil {
		fatalf("failed to load note schemas: %v", err)
	}
	return registry
}

// newService wires the tool service exactly like serve does, so CLI
// mutations pass through the same validation, gating and transactions as
// MCP calls.
func newService(store storage.Storage, schemas *noteschema.Registry) *tools.Service {
	depEngine := deps.NewEngine(store)
	wfEngine := workflow.NewEngine(store, depEngine, logger)
	return tools.NewService(store, depEngine, wfEngine, schemas, tools.Options{
		Version:          Version,
		NextCandidateCap: cfg.NextCandidateCap(),
		MaxChainDepth:    cfg.MaxChainDepth(),
		Logger:           logger,
	})
}

// lockPath returns the single-writer lock guarding the configured database.
func lockPath() string {
	return cfg.DBPath() + ".lock"
}

// acquireLock takes the writer lock for one CLI mutation. The server holds
// the same lock for its whole lifetime, so a refusal usually means loom
// serve is running against this database.
func acquireLock() *lockfile.Lock {
	path := lockPath()
	lock, err := lockfile.Acquire(path, lockfile.Info{
		PID:       os.Getpid(),
		Database:  cfg.DBPath(),
		Version:   Version,
		StartedAt: time.Now().UTC(),
	}, 2*time.Second)
	if err == nil {
		return lock
	}
	if errors.Is(err, lockfile.ErrBusy) {
		if info, ierr := lockfile.ReadInfo(path); ierr == nil {
			fatalf("database is in use by pid %d (loom %s, since %s); stop it or retry later",
				info.PID, info.Version, info.StartedAt.Format(time.RFC3339))
		}
		fatalf("database is in use by another loom process")
	}
	fatalf("failed to lock database: %v", err)
	return nil
}
