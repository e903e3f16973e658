// Package blueprint provides TOML work-tree templates. A blueprint names a
// root item, its children, the blocking order between them and any seeded
// notes; applying one renders it into the same atomic create-tree arguments
// the manage_items tool accepts, so a blueprint either lands whole or not
// at all.
//
// Example .toml:
//
//	name = "feature"
//	description = "Feature epic with phased children"
//
//	[defaults]
//	priority = "medium"
//
//	[root]
//	title = "New feature"
//	tags = ["feature"]
//
//	[[children]]
//	ref = "design"
//	title = "Design the approach"
//
//	[[children]]
//	ref = "build"
//	title = "Build it"
//	after = ["design"]
package blueprint

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/loomhq/loom/internal/types"
)

// rootRef is the implicit ref of the blueprint root inside the rendered
// create-tree arguments.
const rootRef = "root"

// Blueprint is the root structure of a blueprint file.
type Blueprint struct {
	// Name identifies the blueprint; user files override builtins that
	// share a name.
	Name        string `toml:"name"`
	Description string `toml:"description,omitempty"`

	// Defaults fill fields the root and children leave unset.
	Defaults Defaults `toml:"defaults,omitempty"`

	Root     Item    `toml:"root"`
	Children []Child `toml:"children,omitempty"`

	// Source records where the blueprint was loaded from (set by the store).
	Source string `toml:"-"`
}

// Defaults apply to every item that does not set the field itself. An
// explicit empty tag list on an item suppresses the default tags.
type Defaults struct {
	Priority string   `toml:"priority,omitempty"`
	Tags     []string `toml:"tags,omitempty"`
}

// Item is the field set shared by the root and every child.
type Item struct {
	Title                string   `toml:"title"`
	Description          string   `toml:"description,omitempty"`
	Summary              string   `toml:"summary,omitempty"`
	Priority             string   `toml:"priority,omitempty"`
	Complexity           *int     `toml:"complexity,omitempty"`
	RequiresVerification bool     `toml:"requires_verification,omitempty"`
	Tags                 []string `toml:"tags,omitempty"`
	Notes                []Note   `toml:"notes,omitempty"`
}

// Child is one non-root item. Parent names another child's ref (default:
// the root); After lists refs that must reach terminal before this one can
// start, rendered as BLOCKS edges.
type Child struct {
	Item
	Ref    string   `toml:"ref"`
	Parent string   `toml:"parent,omitempty"`
	After  []string `toml:"after,omitempty"`
}

// Note seeds a structured note on the item it is declared under.
type Note struct {
	Key  string `toml:"key"`
	Role string `toml:"role"`
	Body string `toml:"body"`
}

// Parse decodes and validates one blueprint document.
func Parse(data []byte) (*Blueprint, error) {
	var bp Blueprint
	if err := toml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("failed to parse blueprint: %w", err)
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}
	return &bp, nil
}

// Validate checks the blueprint for structural errors: ref bookkeeping,
// parent ordering and field values that could never create a valid tree.
func (bp *Blueprint) Validate() error {
	var errs []string

	if bp.Name == "" {
		errs = append(errs, "name is required")
	} else if err := types.ValidateTag(bp.Name); err != nil {
		errs = append(errs, fmt.Sprintf("name: must match [a-z0-9][a-z0-9-]* (got %q)", bp.Name))
	}

	if bp.Defaults.Priority != "" && !types.Priority(bp.Defaults.Priority).IsValid() {
		errs = append(errs, fmt.Sprintf("defaults.priority: invalid value %q", bp.Defaults.Priority))
	}
	if _, err := types.NormalizeTags(bp.Defaults.Tags); err != nil {
		errs = append(errs, fmt.Sprintf("defaults.tags: %v", err))
	}

	validateItem(&bp.Root, "root", &errs)

	// Children are rendered in declaration order, so a parent ref must be
	// the root or an earlier child.
	known := map[string]bool{rootRef: true}
	childRefs := make(map[string]bool, len(bp.Children))
	for i := range bp.Children {
		c := &bp.Children[i]
		where := fmt.Sprintf("children[%d]", i)
		if c.Ref == "" {
			errs = append(errs, where+": ref is required")
		} else {
			where = fmt.Sprintf("children[%d] (%s)", i, c.Ref)
			if c.Ref == rootRef {
				errs = append(errs, where+`: ref "root" is reserved`)
			}
			if known[c.Ref] {
				errs = append(errs, fmt.Sprintf("%s: duplicate ref %q", where, c.Ref))
			}
		}
		if c.Parent != "" && !known[c.Parent] {
			errs = append(errs, fmt.Sprintf("%s: parent %q must be the root or an earlier child", where, c.Parent))
		}
		validateItem(&c.Item, where, &errs)
		if c.Ref != "" {
			known[c.Ref] = true
			childRefs[c.Ref] = true
		}
	}

	// After edges are order-independent but must stay inside the child set.
	for i := range bp.Children {
		c := &bp.Children[i]
		where := fmt.Sprintf("children[%d] (%s)", i, c.Ref)
		for _, a := range c.After {
			switch {
			case a == c.Ref:
				errs = append(errs, where+": after cannot reference the child itself")
			case a == rootRef:
				errs = append(errs, where+": after cannot reference the root")
			case !childRefs[a]:
				errs = append(errs, fmt.Sprintf("%s: after references unknown child %q", where, a))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("blueprint validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateItem(item *Item, where string, errs *[]string) {
	if item.Title == "" {
		*errs = append(*errs, where+": title is required")
	}
	if item.Priority != "" && !types.Priority(item.Priority).IsValid() {
		*errs = append(*errs, fmt.Sprintf("%s: invalid priority %q", where, item.Priority))
	}
	if _, err := types.NormalizeTags(item.Tags); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", where, err))
	}
	for j, n := range item.Notes {
		if n.Key == "" {
			*errs = append(*errs, fmt.Sprintf("%s.notes[%d]: key is required", where, j))
		}
		if !types.Role(n.Role).IsNotePhase() {
			*errs = append(*errs, fmt.Sprintf("%s.notes[%d]: role must be queue, work or review (got %q)", where, j, n.Role))
		}
	}
}
