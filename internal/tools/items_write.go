package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
)

// manageItemsArgs is the parameter surface of the manage_items tool. The
// items payload is decoded per op because create and update elements differ.
type manageItemsArgs struct {
	Op    string          `json:"op"`
	Items json.RawMessage `json:"items,omitempty"`

	// Work-tree creation (op create).
	Root         *treeRootSpec  `json:"root,omitempty"`
	Children     []treeItemSpec `json:"children,omitempty"`
	Dependencies []treeDepSpec  `json:"dependencies,omitempty"`
	Notes        []treeNoteSpec `json:"notes,omitempty"`

	// Deletion (op delete).
	IDs                []string `json:"ids,omitempty"`
	RootID             string   `json:"rootId,omitempty"`
	IncludeDescendants bool     `json:"includeDescendants,omitempty"`
}

// itemSpec carries the user-supplied fields of a new item.
type itemSpec struct {
	Title                string   `json:"title"`
	ParentID             string   `json:"parentId,omitempty"`
	Description          string   `json:"description,omitempty"`
	Summary              string   `json:"summary,omitempty"`
	Priority             string   `json:"priority,omitempty"`
	Complexity           *int     `json:"complexity,omitempty"`
	RequiresVerification bool     `json:"requiresVerification,omitempty"`
	Metadata             string   `json:"metadata,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
}

// treeRootSpec is the root of an atomic work tree. Ref defaults to "root";
// ParentID grafts the new tree under an existing item.
type treeRootSpec struct {
	itemSpec
	Ref string `json:"ref,omitempty"`
}

// treeItemSpec is one child in a work tree. ParentRef defaults to the root's
// ref and must name the root or an earlier child (children are ordered
// root-first so depth resolves in one pass).
type treeItemSpec struct {
	itemSpec
	Ref       string `json:"ref"`
	ParentRef string `json:"parentRef,omitempty"`
}

// treeDepSpec is one dependency inside a work tree; from/to accept refs of
// items in this tree or UUIDs of existing items.
type treeDepSpec struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type,omitempty"` // defaults to BLOCKS
	UnblockAt string `json:"unblockAt,omitempty"`
}

// treeNoteSpec is one note attached to a work-tree item by ref.
type treeNoteSpec struct {
	Ref  string `json:"ref"`
	Key  string `json:"key"`
	Role string `json:"role"`
	Body string `json:"body,omitempty"`
}

// itemUpdateSpec is one optimistic update element. Tags is a pointer so an
// explicit empty array clears tags while omission leaves them alone.
type itemUpdateSpec struct {
	ID                   string    `json:"id"`
	Version              int       `json:"version"`
	Title                *string   `json:"title,omitempty"`
	Description          *string   `json:"description,omitempty"`
	Summary              *string   `json:"summary,omitempty"`
	Priority             *string   `json:"priority,omitempty"`
	Complexity           *int      `json:"complexity,omitempty"`
	RequiresVerification *bool     `json:"requiresVerification,omitempty"`
	Metadata             *string   `json:"metadata,omitempty"`
	Tags                 *[]string `json:"tags,omitempty"`
	StatusLabel          *string   `json:"statusLabel,omitempty"`
}

// ManageItems dispatches the manage_items tool: atomic create (plain batch
// or work tree), per-element optimistic update, and delete by ids or root.
func (s *Service) ManageItems(ctx context.Context, raw json.RawMessage) *Envelope {
	var args manageItemsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}

	switch args.Op {
	case "create":
		if args.Root != nil {
			return s.createWorkTree(ctx, &args)
		}
		return s.createItems(ctx, args.Items)
	case "update":
		return s.updateItems(ctx, args.Items)
	case "delete":
		return s.deleteItems(ctx, &args)
	default:
		return s.fail(validationf("op must be one of create, update, delete (got %q)", args.Op))
	}
}

// buildItem converts a spec into a validated WorkItem with a fresh id.
// Parent resolution and depth are the caller's job.
func buildItem(spec *itemSpec) (*types.WorkItem, error) {
	tags, err := types.NormalizeTags(spec.Tags)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	priority := types.PriorityMedium
	if spec.Priority != "" {
		priority = types.Priority(spec.Priority)
		if !priority.IsValid() {
			return nil, validationf("priority must be one of high, medium, low (got %q)", spec.Priority)
		}
	}

	item := &types.WorkItem{
		ID:                   newID(),
		Title:                spec.Title,
		Description:          spec.Description,
		Summary:              spec.Summary,
		Role:                 types.RoleQueue,
		Priority:             priority,
		Complexity:           spec.Complexity,
		RequiresVerification: spec.RequiresVerification,
		Metadata:             spec.Metadata,
		Tags:                 tags,
		Version:              1,
	}
	return item, nil
}

// resolveParents fetches the distinct parents named by the specs and returns
// them by id, failing when one does not exist.
func (s *Service) resolveParents(ctx context.Context, parentIDs []string) (map[string]*types.WorkItem, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	parents, err := s.store.GetItemsByIDs(ctx, parentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch parents: %w", err)
	}
	byID := make(map[string]*types.WorkItem, len(parents))
	for _, p := range parents {
		byID[p.ID] = p
	}
	for _, id := range parentIDs {
		if byID[id] == nil {
			return nil, fmt.Errorf("parent item %s: %w", id, storage.ErrNotFound)
		}
	}
	return byID, nil
}

// createItems inserts a plain batch atomically: every element must validate
// and every named parent must exist, or nothing is created.
func (s *Service) createItems(ctx context.Context, raw json.RawMessage) *Envelope {
	var specs []itemSpec
	if err := decodeArgs(raw, &specs); err != nil {
		return s.fail(err)
	}
	if len(specs) == 0 {
		return s.fail(validationf("items must contain at least one element"))
	}

	var parentIDs []string
	seen := make(map[string]bool)
	for i := range specs {
		if specs[i].ParentID == "" {
			continue
		}
		id, err := requireUUID("parentId", specs[i].ParentID)
		if err != nil {
			return s.fail(indexed(err, i))
		}
		if !seen[id] {
			seen[id] = true
			parentIDs = append(parentIDs, id)
		}
	}
	parents, err := s.resolveParents(ctx, parentIDs)
	if err != nil {
		return s.fail(err)
	}

	items := make([]*types.WorkItem, 0, len(specs))
	for i := range specs {
		item, err := buildItem(&specs[i])
		if err != nil {
			return s.fail(indexed(err, i))
		}
		if specs[i].ParentID != "" {
			parent := parents[specs[i].ParentID]
			item.ParentID = &parent.ID
			item.Depth = parent.Depth + 1
		}
		if err := item.Validate(); err != nil {
			return s.fail(indexed(&ValidationError{Message: err.Error()}, i))
		}
		items = append(items, item)
	}

	if err := s.store.CreateItems(ctx, items); err != nil {
		return s.fail(err)
	}
	s.log.Info("items created", zap.Int("count", len(items)))
	return s.ok(fmt.Sprintf("created %d item(s)", len(items)), map[string]any{
		"items": items,
		"count": len(items),
	})
}

// indexed tags a validation error with the batch element it came from.
func indexed(err error, i int) error {
	if verr, ok := err.(*ValidationError); ok {
		details := map[string]any{"index": i}
		if verr.Details != nil {
			details["cause"] = verr.Details
		}
		return &ValidationError{
			Message: fmt.Sprintf("items[%d]: %s", i, verr.Message),
			Details: details,
		}
	}
	return fmt.Errorf("items[%d]: %w", i, err)
}

// createWorkTree creates a root, its descendants, their dependencies and
// notes in one transaction. Refs name the new items; any failure rolls the
// whole tree back.
func (s *Service) createWorkTree(ctx context.Context, args *manageItemsArgs) *Envelope {
	root, err := buildItem(&args.Root.itemSpec)
	if err != nil {
		return s.fail(fmt.Errorf("root: %w", err))
	}
	if args.Root.ParentID != "" {
		id, err := requireUUID("root.parentId", args.Root.ParentID)
		if err != nil {
			return s.fail(err)
		}
		parents, err := s.resolveParents(ctx, []string{id})
		if err != nil {
			return s.fail(err)
		}
		root.ParentID = &parents[id].ID
		root.Depth = parents[id].Depth + 1
	}

	rootRef := args.Root.Ref
	if rootRef == "" {
		rootRef = "root"
	}

	// Resolve the ref namespace root-first so each child's parent is built
	// before the child itself.
	byRef := map[string]*types.WorkItem{rootRef: root}
	items := []*types.WorkItem{root}
	for i := range args.Children {
		child := &args.Children[i]
		if child.Ref == "" {
			return s.fail(validationf("children[%d]: ref is required", i))
		}
		if byRef[child.Ref] != nil {
			return s.fail(validationf("children[%d]: duplicate ref %q", i, child.Ref))
		}
		if child.ParentID != "" {
			return s.fail(validationf("children[%d]: use parentRef instead of parentId inside a work tree", i))
		}
		parentRef := child.ParentRef
		if parentRef == "" {
			parentRef = rootRef
		}
		parent := byRef[parentRef]
		if parent == nil {
			return s.fail(validationf("children[%d]: unknown parentRef %q (children are ordered root-first)", i, parentRef))
		}
		item, err := buildItem(&child.itemSpec)
		if err != nil {
			return s.fail(indexed(err, i))
		}
		item.ParentID = &parent.ID
		item.Depth = parent.Depth + 1
		if err := item.Validate(); err != nil {
			return s.fail(indexed(&ValidationError{Message: err.Error()}, i))
		}
		byRef[child.Ref] = item
		items = append(items, item)
	}
	if err := root.Validate(); err != nil {
		return s.fail(&ValidationError{Message: "root: " + err.Error()})
	}

	resolve := func(field, value string) (string, error) {
		if item := byRef[value]; item != nil {
			return item.ID, nil
		}
		if _, err := uuid.Parse(value); err == nil {
			return value, nil // existing item; storage verifies it exists
		}
		return "", validationf("%s: unknown ref %q", field, value)
	}

	edges := make([]*types.Dependency, 0, len(args.Dependencies))
	for i := range args.Dependencies {
		spec := &args.Dependencies[i]
		from, err := resolve(fmt.Sprintf("dependencies[%d].from", i), spec.From)
		if err != nil {
			return s.fail(err)
		}
		to, err := resolve(fmt.Sprintf("dependencies[%d].to", i), spec.To)
		if err != nil {
			return s.fail(err)
		}
		edge, err := buildEdge(from, to, spec.Type, spec.UnblockAt)
		if err != nil {
			return s.fail(fmt.Errorf("dependencies[%d]: %w", i, err))
		}
		edges = append(edges, edge)
	}

	notes := make([]*types.Note, 0, len(args.Notes))
	for i := range args.Notes {
		spec := &args.Notes[i]
		target := byRef[spec.Ref]
		if target == nil {
			return s.fail(validationf("notes[%d]: unknown ref %q", i, spec.Ref))
		}
		note := &types.Note{
			ID:     newID(),
			ItemID: target.ID,
			Key:    spec.Key,
			Role:   types.Role(spec.Role),
			Body:   spec.Body,
		}
		if err := note.Validate(); err != nil {
			return s.fail(validationf("notes[%d]: %v", i, err))
		}
		notes = append(notes, note)
	}

	created := make([]*types.Note, 0, len(notes))
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateItems(ctx, items); err != nil {
			return err
		}
		if len(edges) > 0 {
			if err := tx.CreateDependencies(ctx, edges); err != nil {
				return err
			}
		}
		for _, note := range notes {
			stored, err := tx.UpsertNote(ctx, note)
			if err != nil {
				return err
			}
			created = append(created, stored)
		}
		return nil
	})
	if err != nil {
		return s.fail(err)
	}

	s.log.Info("work tree created",
		zap.String("root_id", root.ID),
		zap.Int("items", len(items)),
		zap.Int("dependencies", len(edges)),
		zap.Int("notes", len(created)))
	return s.ok(fmt.Sprintf("created work tree with %d item(s)", len(items)), map[string]any{
		"root":         root,
		"items":        items,
		"dependencies": edges,
		"notes":        created,
	})
}

// ItemWriteResult is one element outcome of a batch update.
type ItemWriteResult struct {
	ItemID  string          `json:"itemId"`
	Success bool            `json:"success"`
	Item    *types.WorkItem `json:"item,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// updateItems applies optimistic patches element by element; a failed
// element never aborts its neighbours.
func (s *Service) updateItems(ctx context.Context, raw json.RawMessage) *Envelope {
	var specs []itemUpdateSpec
	if err := decodeArgs(raw, &specs); err != nil {
		return s.fail(err)
	}
	if len(specs) == 0 {
		return s.fail(validationf("items must contain at least one element"))
	}

	results := make([]ItemWriteResult, 0, len(specs))
	summary := BatchSummary{Total: len(specs)}

	for i := range specs {
		spec := &specs[i]
		updated, err := s.updateOneItem(ctx, spec)
		if err != nil {
			summary.Failed++
			results = append(results, ItemWriteResult{
				ItemID: spec.ID, Error: errorBody(err),
			})
			continue
		}
		summary.Succeeded++
		results = append(results, ItemWriteResult{
			ItemID: updated.ID, Success: true, Item: updated,
		})
	}

	return s.ok(fmt.Sprintf("updated %d of %d item(s)", summary.Succeeded, summary.Total), map[string]any{
		"results": results,
		"summary": summary,
	})
}

func (s *Service) updateOneItem(ctx context.Context, spec *itemUpdateSpec) (*types.WorkItem, error) {
	id, err := requireUUID("id", spec.ID)
	if err != nil {
		return nil, err
	}
	if spec.Version < 1 {
		return nil, validationf("version is required and must be >= 1")
	}

	patch := &types.ItemUpdate{
		Title:                spec.Title,
		Description:          spec.Description,
		Summary:              spec.Summary,
		Complexity:           spec.Complexity,
		RequiresVerification: spec.RequiresVerification,
		Metadata:             spec.Metadata,
		StatusLabel:          spec.StatusLabel,
	}
	if spec.Priority != nil {
		p := types.Priority(*spec.Priority)
		if !p.IsValid() {
			return nil, validationf("priority must be one of high, medium, low (got %q)", *spec.Priority)
		}
		patch.Priority = &p
	}
	if spec.Tags != nil {
		tags, err := types.NormalizeTags(*spec.Tags)
		if err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		patch.Tags = &tags
	}
	if patch.Empty() {
		return nil, validationf("no fields to update for item %s", id)
	}

	return s.store.UpdateItem(ctx, id, spec.Version, patch)
}

// deleteItems removes items by explicit ids or a whole tree by root.
// Dependencies and notes of removed items cascade away with them.
func (s *Service) deleteItems(ctx context.Context, args *manageItemsArgs) *Envelope {
	switch {
	case len(args.IDs) > 0 && args.RootID != "":
		return s.fail(validationf("pass either ids or rootId, not both"))

	case len(args.IDs) > 0:
		for i, id := range args.IDs {
			if _, err := requireUUID("ids", id); err != nil {
				return s.fail(indexed(err, i))
			}
		}
		count, err := s.store.DeleteItems(ctx, args.IDs)
		if err != nil {
			return s.fail(err)
		}
		s.log.Info("items deleted", zap.Int("count", count))
		return s.ok(fmt.Sprintf("deleted %d item(s) including descendants", count), map[string]any{
			"deletedCount": count,
		})

	case args.RootID != "":
		id, err := requireUUID("rootId", args.RootID)
		if err != nil {
			return s.fail(err)
		}
		if !args.IncludeDescendants {
			return s.fail(validationf("deleting by rootId removes the whole subtree; set includeDescendants true to confirm"))
		}
		if _, err := s.store.GetItem(ctx, id); err != nil {
			return s.fail(err)
		}
		count, err := s.store.DeleteItems(ctx, []string{id})
		if err != nil {
			return s.fail(err)
		}
		s.log.Info("work tree deleted", zap.String("root_id", id), zap.Int("count", count))
		return s.ok(fmt.Sprintf("deleted %d item(s) including descendants", count), map[string]any{
			"deletedCount": count,
		})

	default:
		return s.fail(validationf("delete requires ids or rootId"))
	}
}
