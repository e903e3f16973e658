package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/storage/sqlite"
)

// gitignoreBody keeps the database and its sidecars out of version control
// while leaving config.yaml, schemas.yaml and blueprints trackable.
const gitignoreBody = `*.db
*.db-wal
*.db-shm
*.lock
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize loom in the current directory",
	Long: `Initialize loom by creating a .loom/ directory with the database and a
commented config file. Safe to re-run: existing files are left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		runInit()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit() {
	stateDir := cfg.StateDir()

	cfgPath, err := config.WriteDefault(stateDir)
	if err != nil {
		fatalf("%v", err)
	}

	path := cfg.DBPath()
	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	}
	store, err := sqlite.New(rootCtx, path)
	if err != nil {
		fatalf("failed to create database: %v", err)
	}
	if err := store.Close(); err != nil {
		fatalf("failed to close database: %v", err)
	}

	gitignore := filepath.Join(stateDir, ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		if err := os.WriteFile(gitignore, []byte(gitignoreBody), 0o644); err != nil {
			fatalf("failed to write %s: %v", gitignore, err)
		}
	}

	if jsonOutput {
		outputJSON(map[string]any{
			"stateDir": stateDir,
			"database": path,
			"config":   cfgPath,
			"existed":  existed,
		})
		return
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if existed {
		fmt.Printf("\n%s loom already initialised\n\n", green("✓"))
	} else {
		fmt.Printf("\n%s loom initialised\n\n", green("✓"))
	}
	fmt.Printf("  Database: %s\n", cyan(path))
	fmt.Printf("  Config:   %s\n", cyan(cfgPath))
	fmt.Printf("  Schemas:  %s (optional, overrides built-ins)\n\n", cyan(cfg.SchemasPath()))
	fmt.Printf("Run %s to connect an MCP client, or %s to add a first item.\n\n",
		cyan("loom serve"), cyan("loom create"))
}
