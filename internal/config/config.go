// Package config resolves loom settings from flags, environment and the
// instance config file, in that precedence order. Settings live in
// .loom/config.yaml next to the database; the LOOM_ environment prefix
// overrides the file (LOOM_DB_PATH, LOOM_LOG_LEVEL, ...), and cobra flags
// bound through BindPFlag override everything.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment namespace: LOOM_DB_PATH maps to db.path.
const EnvPrefix = "LOOM"

// StateDirName is the per-instance directory holding the database, config
// file, user schemas and user blueprints.
const StateDirName = ".loom"

const fileName = "config.yaml"

// File names inside the state dir.
const (
	dbFile        = "loom.db"
	schemasFile   = "schemas.yaml"
	blueprintsDir = "blueprints"
)

// Config wraps a viper instance scoped to one loom state dir.
type Config struct {
	v        *viper.Viper
	stateDir string
}

// Load resolves the state dir by walking up from startDir, reads the config
// file when one exists, and returns the layered configuration. A missing
// config file is fine; a malformed one is not.
func Load(startDir string) (*Config, error) {
	stateDir, err := filepath.Abs(FindStateDir(startDir))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db.path", filepath.Join(stateDir, dbFile))
	v.SetDefault("schemas.path", filepath.Join(stateDir, schemasFile))
	v.SetDefault("blueprints.dir", filepath.Join(stateDir, blueprintsDir))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("next.candidate-cap", 200)
	v.SetDefault("tree.max-depth", 16)
	v.SetDefault("graph.max-chain-depth", 50)
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "")

	path := filepath.Join(stateDir, fileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	return &Config{v: v, stateDir: stateDir}, nil
}

// FindStateDir walks up from startDir looking for an existing state dir so
// commands work from subdirectories. When none exists it designates
// startDir/.loom, which init will create.
func FindStateDir(startDir string) string {
	if startDir == "" {
		startDir = "."
	}
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return filepath.Join(startDir, StateDirName)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, StateDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return filepath.Join(abs, StateDirName)
}

// BindPFlag routes a cobra flag into the precedence chain above env and file.
func (c *Config) BindPFlag(key string, flag *pflag.Flag) error {
	return c.v.BindPFlag(key, flag)
}

// Set forces a value, taking precedence over every other source.
func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

// StateDir returns the resolved .loom directory (which may not exist yet).
func (c *Config) StateDir() string { return c.stateDir }

func (c *Config) DBPath() string        { return c.v.GetString("db.path") }
func (c *Config) SchemasPath() string   { return c.v.GetString("schemas.path") }
func (c *Config) BlueprintsDir() string { return c.v.GetString("blueprints.dir") }
func (c *Config) LogLevel() string      { return c.v.GetString("log.level") }
func (c *Config) LogFormat() string     { return c.v.GetString("log.format") }

// NextCandidateCap bounds how many queue items get_next_item ranks.
func (c *Config) NextCandidateCap() int { return c.v.GetInt("next.candidate-cap") }

// TreeMaxDepth bounds work-item nesting.
func (c *Config) TreeMaxDepth() int { return c.v.GetInt("tree.max-depth") }

// MaxChainDepth bounds dependency chain traversal.
func (c *Config) MaxChainDepth() int { return c.v.GetInt("graph.max-chain-depth") }

func (c *Config) OtelEnabled() bool    { return c.v.GetBool("otel.enabled") }
func (c *Config) OtelEndpoint() string { return c.v.GetString("otel.endpoint") }

// defaultConfig is written by init so every knob is discoverable in place.
const defaultConfig = `# loom instance configuration. Every key can also be set through the
# environment with the LOOM_ prefix (db.path -> LOOM_DB_PATH) or through
# command-line flags, which win over this file.

# db:
#   path: .loom/loom.db

# schemas:
#   path: .loom/schemas.yaml

# blueprints:
#   dir: .loom/blueprints

# log:
#   level: info      # debug, info, warn, error
#   format: console  # console or json

# next:
#   candidate-cap: 200

# tree:
#   max-depth: 16

# graph:
#   max-chain-depth: 50

# otel:
#   enabled: false
#   endpoint: ""     # OTLP gRPC endpoint; empty prints spans to stderr
`

// WriteDefault creates the state dir and a commented config file. An
// existing config file is left alone.
func WriteDefault(stateDir string) (string, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, fileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
