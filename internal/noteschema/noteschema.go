// Package noteschema resolves which structured notes a work item is
// expected to carry. Schemas are matched to items through tags; the tool
// handlers use the resolved schema to gate start/complete triggers and to
// tell callers which notes are expected next.
package noteschema

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/loomhq/loom/internal/types"
)

//go:embed schemas/*.yaml
var builtinSchemas embed.FS

// Entry is one expected note within a schema.
type Entry struct {
	Key         string     `yaml:"key" json:"key"`
	Role        types.Role `yaml:"role" json:"role"`
	Required    bool       `yaml:"required" json:"required"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Guidance    string     `yaml:"guidance,omitempty" json:"guidance,omitempty"`
}

// Schema names the notes expected on items carrying all of its tags.
type Schema struct {
	Name    string   `yaml:"name" json:"name"`
	Tags    []string `yaml:"tags" json:"tags"`
	Entries []Entry  `yaml:"entries" json:"entries"`
}

// ExpectedNote pairs a schema entry with whether the item already carries a
// note under that key.
type ExpectedNote struct {
	Entry
	Exists bool `json:"exists"`
}

// registryFile is the YAML shape shared by the embedded defaults and the
// user override file.
type registryFile struct {
	Schemas []*Schema `yaml:"schemas"`
}

// Registry holds the merged schema set and answers tag lookups. It is safe
// for concurrent use; Reload swaps the set atomically.
type Registry struct {
	userPath string

	mu      sync.RWMutex
	schemas []*Schema
}

// NewRegistry loads the embedded schemas, merged with the user registry
// file at userPath when it exists. An empty userPath disables overrides.
func NewRegistry(userPath string) (*Registry, error) {
	r := &Registry{userPath: userPath}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every source and swaps the active schema set. On error
// the previous set stays in place.
func (r *Registry) Reload() error {
	schemas, err := loadBuiltin()
	if err != nil {
		return err
	}

	if r.userPath != "" {
		user, err := loadFile(r.userPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			schemas = mergeByName(schemas, user)
		}
	}

	// Order is by name, independent of source file layout.
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })

	r.mu.Lock()
	r.schemas = schemas
	r.mu.Unlock()
	return nil
}

// Schemas returns a snapshot of the active schema set.
func (r *Registry) Schemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// SchemaForTags returns the schema whose tags are all present on the item,
// preferring the most specific match (most tags; ties break by name). Nil
// when nothing matches: gates then pass vacuously.
func (r *Registry) SchemaForTags(tags []string) *Schema {
	have := make(map[string]bool, len(tags))
	for _, t := range tags {
		have[t] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Schema
	for _, s := range r.schemas {
		if !matchesAll(s.Tags, have) {
			continue
		}
		if best == nil ||
			len(s.Tags) > len(best.Tags) ||
			(len(s.Tags) == len(best.Tags) && s.Name < best.Name) {
			best = s
		}
	}
	return best
}

// HasReviewPhase reports whether the schema matched by the tags expects a
// review-phase note. Items without a matching schema have no review phase.
func (r *Registry) HasReviewPhase(tags []string) bool {
	s := r.SchemaForTags(tags)
	if s == nil {
		return false
	}
	for _, e := range s.Entries {
		if e.Role == types.RoleReview {
			return true
		}
	}
	return false
}

func matchesAll(need []string, have map[string]bool) bool {
	if len(need) == 0 {
		return false
	}
	for _, t := range need {
		if !have[t] {
			return false
		}
	}
	return true
}

func loadBuiltin() ([]*Schema, error) {
	entries, err := builtinSchemas.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schemas: %w", err)
	}

	var out []*Schema
	for _, entry := range entries {
		data, err := builtinSchemas.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded schema %s: %w", entry.Name(), err)
		}
		schemas, err := parseRegistry(data)
		if err != nil {
			return nil, fmt.Errorf("embedded schema %s: %w", entry.Name(), err)
		}
		out = append(out, schemas...)
	}
	return out, nil
}

func loadFile(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schemas, err := parseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schemas, nil
}

func parseRegistry(data []byte) ([]*Schema, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schema registry: %w", err)
	}
	for _, s := range file.Schemas {
		if err := validateSchema(s); err != nil {
			return nil, err
		}
	}
	return file.Schemas, nil
}

func validateSchema(s *Schema) error {
	if s.Name == "" {
		return fmt.Errorf("schema without a name")
	}
	if len(s.Tags) == 0 {
		return fmt.Errorf("schema %q has no tags", s.Name)
	}
	normalized, err := types.NormalizeTags(s.Tags)
	if err != nil {
		return fmt.Errorf("schema %q: %w", s.Name, err)
	}
	s.Tags = types.SplitTags(normalized)
	if len(s.Entries) == 0 {
		return fmt.Errorf("schema %q has no entries", s.Name)
	}
	seen := make(map[string]bool, len(s.Entries))
	for _, e := range s.Entries {
		if e.Key == "" {
			return fmt.Errorf("schema %q has an entry without a key", s.Name)
		}
		if len(e.Key) > types.MaxNoteKeyLength {
			return fmt.Errorf("schema %q entry %q: key too long", s.Name, e.Key)
		}
		if !e.Role.IsNotePhase() {
			return fmt.Errorf("schema %q entry %q: invalid role %q", s.Name, e.Key, e.Role)
		}
		if seen[e.Key] {
			return fmt.Errorf("schema %q has duplicate entry key %q", s.Name, e.Key)
		}
		seen[e.Key] = true
	}
	return nil
}

// mergeByName lays user schemas over the base set: same-name schemas are
// replaced, new ones appended.
func mergeByName(base, user []*Schema) []*Schema {
	byName := make(map[string]*Schema, len(base)+len(user))
	for _, s := range base {
		byName[s.Name] = s
	}
	for _, s := range user {
		byName[s.Name] = s
	}
	out := make([]*Schema, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	return out
}

// MissingForStart returns the required keys for the item's current role
// whose notes are absent or empty. A nil schema means nothing is missing.
func MissingForStart(schema *Schema, current types.Role, notes []*types.Note) []string {
	if schema == nil {
		return nil
	}
	bodies := noteBodies(notes)
	var missing []string
	for _, e := range schema.Entries {
		if !e.Required || e.Role != current {
			continue
		}
		if strings.TrimSpace(bodies[e.Key]) == "" {
			missing = append(missing, e.Key)
		}
	}
	return missing
}

// MissingForComplete returns every required key across all roles whose
// notes are absent or empty.
func MissingForComplete(schema *Schema, notes []*types.Note) []string {
	if schema == nil {
		return nil
	}
	bodies := noteBodies(notes)
	var missing []string
	for _, e := range schema.Entries {
		if !e.Required {
			continue
		}
		if strings.TrimSpace(bodies[e.Key]) == "" {
			missing = append(missing, e.Key)
		}
	}
	return missing
}

// ExpectedForRole returns the schema entries for the given role, each
// flagged with whether the item already carries a note under that key.
func ExpectedForRole(schema *Schema, role types.Role, notes []*types.Note) []ExpectedNote {
	if schema == nil {
		return nil
	}
	keys := make(map[string]bool, len(notes))
	for _, n := range notes {
		keys[n.Key] = true
	}
	var out []ExpectedNote
	for _, e := range schema.Entries {
		if e.Role != role {
			continue
		}
		out = append(out, ExpectedNote{Entry: e, Exists: keys[e.Key]})
	}
	return out
}

func noteBodies(notes []*types.Note) map[string]string {
	m := make(map[string]string, len(notes))
	for _, n := range notes {
		m[n.Key] = n.Body
	}
	return m
}
