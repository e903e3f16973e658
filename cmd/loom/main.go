// Command loom is the task orchestration tool: an MCP server over stdio for
// agents plus an operator CLI over the same database and engines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/telemetry"
)

var (
	dbPath     string
	actor      string
	jsonOutput bool

	cfg    *config.Config
	logger *zap.Logger

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .loom/loom.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for log attribution (default: $LOOM_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Same behavior as the version subcommand
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:           "loom",
	Short:         "loom - dependency-aware task orchestration for agents",
	Long:          `Work items chained into trees with typed dependencies. loom serves MCP tools to agents over stdio and gives operators a CLI over the same database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("loom version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		var err error
		cfg, err = config.Load(".")
		if err != nil {
			return err
		}
		if err := cfg.BindPFlag("db.path", cmd.Root().PersistentFlags().Lookup("db")); err != nil {
			return err
		}

		logger, err = buildLogger(cfg)
		if err != nil {
			return err
		}
		logger = logger.With(zap.String("actor", resolveActor()))

		return telemetry.Init(rootCtx, telemetry.Options{
			Enabled:     cfg.OtelEnabled(),
			ServiceName: "loom",
			Version:     Version,
			Endpoint:    cfg.OtelEndpoint(),
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
		_ = logger.Sync()
		rootCancel()
	},
}

// buildLogger constructs the CLI logger on stderr; stdout stays reserved for
// command output and, under serve, the MCP wire.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel())
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel(), err)
	}

	var enc zapcore.Encoder
	switch cfg.LogFormat() {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q (want console or json)", cfg.LogFormat())
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// resolveActor returns the identity stamped on log records.
// Priority: --actor flag > LOOM_ACTOR env > git config user.name > $USER > "unknown".
func resolveActor() string {
	if actor != "" {
		return actor
	}
	if v := os.Getenv("LOOM_ACTOR"); v != "" {
		return v
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
