package blueprint

import (
	"encoding/json"
	"fmt"
)

// Options adjust a single instantiation without editing the blueprint.
type Options struct {
	// RootTitle replaces the blueprint's root title.
	RootTitle string

	// ParentID grafts the new tree under an existing item.
	ParentID string
}

// treeArgs mirrors the manage_items create-tree argument shape.
type treeArgs struct {
	Op           string     `json:"op"`
	Root         *itemArgs  `json:"root"`
	Children     []itemArgs `json:"children,omitempty"`
	Dependencies []depArgs  `json:"dependencies,omitempty"`
	Notes        []noteArgs `json:"notes,omitempty"`
}

type itemArgs struct {
	Ref                  string   `json:"ref,omitempty"`
	ParentRef            string   `json:"parentRef,omitempty"`
	ParentID             string   `json:"parentId,omitempty"`
	Title                string   `json:"title"`
	Description          string   `json:"description,omitempty"`
	Summary              string   `json:"summary,omitempty"`
	Priority             string   `json:"priority,omitempty"`
	Complexity           *int     `json:"complexity,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	RequiresVerification bool     `json:"requiresVerification,omitempty"`
}

type depArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type noteArgs struct {
	Ref  string `json:"ref"`
	Key  string `json:"key"`
	Role string `json:"role"`
	Body string `json:"body,omitempty"`
}

// Instantiate renders the blueprint into manage_items create-tree arguments.
// Feeding the result through the tool gives the blueprint the same atomicity
// as any other work tree: one failed edge or note rolls everything back.
func Instantiate(bp *Blueprint, opts Options) (json.RawMessage, error) {
	if err := bp.Validate(); err != nil {
		return nil, err
	}

	root := renderItem(&bp.Root, &bp.Defaults)
	root.Ref = rootRef
	root.ParentID = opts.ParentID
	if opts.RootTitle != "" {
		root.Title = opts.RootTitle
	}

	args := treeArgs{Op: "create", Root: &root}
	appendNotes(&args, rootRef, bp.Root.Notes)

	for i := range bp.Children {
		c := &bp.Children[i]
		item := renderItem(&c.Item, &bp.Defaults)
		item.Ref = c.Ref
		item.ParentRef = c.Parent
		args.Children = append(args.Children, item)

		for _, a := range c.After {
			args.Dependencies = append(args.Dependencies, depArgs{From: a, To: c.Ref})
		}
		appendNotes(&args, c.Ref, c.Notes)
	}

	out, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blueprint %s: %w", bp.Name, err)
	}
	return out, nil
}

// renderItem applies the blueprint defaults to fields the item leaves
// unset. A child declaring tags = [] keeps them empty.
func renderItem(item *Item, defaults *Defaults) itemArgs {
	out := itemArgs{
		Title:                item.Title,
		Description:          item.Description,
		Summary:              item.Summary,
		Priority:             item.Priority,
		Complexity:           item.Complexity,
		RequiresVerification: item.RequiresVerification,
		Tags:                 item.Tags,
	}
	if out.Priority == "" {
		out.Priority = defaults.Priority
	}
	if item.Tags == nil && len(defaults.Tags) > 0 {
		out.Tags = append([]string(nil), defaults.Tags...)
	}
	return out
}

func appendNotes(args *treeArgs, ref string, notes []Note) {
	for _, n := range notes {
		args.Notes = append(args.Notes, noteArgs{Ref: ref, Key: n.Key, Role: n.Role, Body: n.Body})
	}
}
