package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/types"
)

// manageNotesArgs is the parameter surface of the manage_notes tool.
type manageNotesArgs struct {
	Op    string     `json:"op"`
	Notes []noteSpec `json:"notes,omitempty"`

	// delete selectors
	IDs    []string `json:"ids,omitempty"`
	ItemID string   `json:"itemId,omitempty"`
	Key    string   `json:"key,omitempty"`
}

// noteSpec is one note in an upsert batch.
type noteSpec struct {
	ItemID string `json:"itemId"`
	Key    string `json:"key"`
	Role   string `json:"role"`
	Body   string `json:"body"`
}

// NoteWriteResult is the per-element outcome of a note upsert.
type NoteWriteResult struct {
	ItemID  string      `json:"itemId"`
	Key     string      `json:"key"`
	Success bool        `json:"success"`
	Note    *types.Note `json:"note,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ManageNotes dispatches the manage_notes tool across its operations.
func (s *Service) ManageNotes(ctx context.Context, raw json.RawMessage) *Envelope {
	var args manageNotesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}

	switch args.Op {
	case "upsert":
		return s.upsertNotes(ctx, &args)
	case "delete":
		return s.deleteNotes(ctx, &args)
	default:
		return s.fail(validationf("op must be one of upsert, delete (got %q)", args.Op))
	}
}

// upsertNotes writes each note independently. A failed element never aborts
// the rest of the batch.
func (s *Service) upsertNotes(ctx context.Context, args *manageNotesArgs) *Envelope {
	if len(args.Notes) == 0 {
		return s.fail(validationf("notes is required for upsert"))
	}

	results := make([]NoteWriteResult, 0, len(args.Notes))
	succeeded := 0
	for _, spec := range args.Notes {
		result := NoteWriteResult{ItemID: spec.ItemID, Key: spec.Key}

		note, err := buildNote(spec)
		if err == nil {
			note.ID = newID()
			var stored *types.Note
			stored, err = s.store.UpsertNote(ctx, note)
			if err == nil {
				result.Success = true
				result.Note = stored
				succeeded++
			}
		}
		if err != nil {
			result.Error = err.Error()
			s.log.Warn("note upsert failed",
				zap.String("item_id", spec.ItemID), zap.Error(err))
		}
		results = append(results, result)
	}

	message := fmt.Sprintf("%d of %d note(s) written", succeeded, len(args.Notes))
	return s.ok(message, map[string]any{
		"results": results,
		"summary": BatchSummary{Total: len(args.Notes), Succeeded: succeeded, Failed: len(args.Notes) - succeeded},
	})
}

// buildNote validates a spec into a Note ready for storage.
func buildNote(spec noteSpec) (*types.Note, error) {
	itemID, err := requireUUID("itemId", spec.ItemID)
	if err != nil {
		return nil, err
	}
	role := types.Role(strings.ToLower(spec.Role))
	note := &types.Note{
		ItemID: itemID,
		Key:    strings.TrimSpace(spec.Key),
		Role:   role,
		Body:   spec.Body,
	}
	if err := note.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return note, nil
}

// deleteNotes removes notes by id list, by (itemId, key), or every note on
// an item.
func (s *Service) deleteNotes(ctx context.Context, args *manageNotesArgs) *Envelope {
	switch {
	case len(args.IDs) > 0:
		deleted := 0
		var failures []map[string]string
		for _, id := range args.IDs {
			if err := s.store.DeleteNote(ctx, id); err != nil {
				failures = append(failures, map[string]string{"id": id, "error": err.Error()})
				continue
			}
			deleted++
		}
		data := map[string]any{"deletedCount": deleted}
		if len(failures) > 0 {
			data["failures"] = failures
		}
		return s.ok(fmt.Sprintf("%d note(s) deleted", deleted), data)

	case args.ItemID != "" && args.Key != "":
		itemID, err := requireUUID("itemId", args.ItemID)
		if err != nil {
			return s.fail(err)
		}
		if err := s.store.DeleteNoteByItemAndKey(ctx, itemID, args.Key); err != nil {
			return s.fail(err)
		}
		return s.ok("note deleted", map[string]any{"deletedCount": 1})

	case args.ItemID != "":
		itemID, err := requireUUID("itemId", args.ItemID)
		if err != nil {
			return s.fail(err)
		}
		if _, err := s.store.GetItem(ctx, itemID); err != nil {
			return s.fail(err)
		}
		count, err := s.store.DeleteNotesForItem(ctx, itemID)
		if err != nil {
			return s.fail(err)
		}
		return s.ok(fmt.Sprintf("%d note(s) deleted", count), map[string]any{"deletedCount": count})

	default:
		return s.fail(validationf("delete requires ids, itemId, or itemId with key"))
	}
}
