package main

import (
	"context"
	"errors"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `Run the loom MCP server over stdio.

Stdout carries JSON-RPC exclusively; logs go to stderr. The server holds
the database writer lock for its lifetime, reloads the note-schema registry
when the user file changes, and shuts down cleanly on SIGINT/SIGTERM or
stdin EOF.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
	lock := acquireLock()
	defer lock.Release()

	store := openStore()
	defer closeStore(store)

	registry := loadSchemas()
	svc := newService(store, registry)

	srv := server.NewMCPServer("loom", Version, server.WithToolCapabilities(true))
	svc.Register(srv)

	logger.Info("loom server starting",
		zap.String("version", Version),
		zap.String("db", store.Path()),
		zap.Int("pid", os.Getpid()))

	ctx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Returning cancels the watcher too: EOF on stdin ends the session.
		defer cancel()
		return server.NewStdioServer(srv).Listen(gctx, os.Stdin, os.Stdout)
	})
	g.Go(func() error {
		return registry.Watch(gctx, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("loom server stopped")
}
