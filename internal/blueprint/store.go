package blueprint

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed blueprints/*.toml
var builtinBlueprints embed.FS

// Store resolves blueprints by name: user files in dir lay over the
// embedded builtins, replacing same-name entries.
type Store struct {
	dir string
}

// NewStore returns a store reading user blueprints from dir. An empty dir
// limits the store to the builtins.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns every known blueprint sorted by name.
func (s *Store) List() ([]*Blueprint, error) {
	byName := make(map[string]*Blueprint)

	entries, err := builtinBlueprints.ReadDir("blueprints")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded blueprints: %w", err)
	}
	for _, entry := range entries {
		data, err := builtinBlueprints.ReadFile("blueprints/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded blueprint %s: %w", entry.Name(), err)
		}
		bp, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("embedded blueprint %s: %w", entry.Name(), err)
		}
		bp.Source = "builtin"
		byName[bp.Name] = bp
	}

	if s.dir != "" {
		if err := s.loadDir(byName); err != nil {
			return nil, err
		}
	}

	out := make([]*Blueprint, 0, len(byName))
	for _, bp := range byName {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) loadDir(byName map[string]*Blueprint) error {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read blueprint dir %s: %w", s.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured blueprint dir
		if err != nil {
			return fmt.Errorf("failed to read blueprint %s: %w", path, err)
		}
		bp, err := Parse(data)
		if err != nil {
			return fmt.Errorf("blueprint %s: %w", path, err)
		}
		bp.Source = path
		byName[bp.Name] = bp
	}
	return nil
}

// Get looks up one blueprint by name, case-insensitively.
func (s *Store) Get(name string) (*Blueprint, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, bp := range all {
		if bp.Name == name {
			return bp, nil
		}
	}
	return nil, fmt.Errorf("unknown blueprint %q", name)
}
