package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/noteschema"
	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/workflow"
)

// advanceItemArgs is the parameter surface of the advance_item tool.
type advanceItemArgs struct {
	Transitions []transitionSpec `json:"transitions"`
}

// transitionSpec is one requested trigger in an advance batch.
type transitionSpec struct {
	ItemID  string `json:"itemId"`
	Trigger string `json:"trigger"`
	Summary string `json:"summary,omitempty"`
}

// AdvanceResult is the per-element outcome of one transition attempt.
type AdvanceResult struct {
	ItemID         string                    `json:"itemId"`
	Trigger        types.Trigger             `json:"trigger"`
	Success        bool                      `json:"success"`
	Item           *types.WorkItem           `json:"item,omitempty"`
	PreviousRole   types.Role                `json:"previousRole,omitempty"`
	ExpectedNotes  []noteschema.ExpectedNote `json:"expectedNotes,omitempty"`
	CascadeEvents  []CascadeEvent            `json:"cascadeEvents,omitempty"`
	UnblockedItems []*types.WorkItem         `json:"unblockedItems,omitempty"`
	Error          *ErrorBody                `json:"error,omitempty"`
}

// CascadeEvent is the wire shape of one automatic parent completion.
type CascadeEvent struct {
	ItemID       string        `json:"itemId"`
	Title        string        `json:"title"`
	PreviousRole types.Role    `json:"previousRole"`
	TargetRole   types.Role    `json:"targetRole"`
	Trigger      types.Trigger `json:"trigger"`
}

// AdvanceItem applies role transitions element by element. Each element runs
// the full resolve, validate, gate, apply pipeline; cascades and unblock
// reports from all elements are aggregated at the top level alongside the
// per-element results.
func (s *Service) AdvanceItem(ctx context.Context, raw json.RawMessage) *Envelope {
	var args advanceItemArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}
	if len(args.Transitions) == 0 {
		return s.fail(validationf("transitions must contain at least one element"))
	}

	results := make([]AdvanceResult, 0, len(args.Transitions))
	summary := BatchSummary{Total: len(args.Transitions)}
	var allCascades []CascadeEvent
	var allUnblocked []*types.WorkItem
	seenUnblocked := make(map[string]bool)

	for _, spec := range args.Transitions {
		result := s.advanceOne(ctx, spec)
		if result.Success {
			summary.Succeeded++
			allCascades = append(allCascades, result.CascadeEvents...)
			for _, it := range result.UnblockedItems {
				if !seenUnblocked[it.ID] {
					seenUnblocked[it.ID] = true
					allUnblocked = append(allUnblocked, it)
				}
			}
		} else {
			summary.Failed++
		}
		results = append(results, result)
	}

	data := map[string]any{
		"results": results,
		"summary": summary,
	}
	if len(allCascades) > 0 {
		data["cascadeEvents"] = allCascades
	}
	if len(allUnblocked) > 0 {
		data["allUnblockedItems"] = allUnblocked
	}
	message := fmt.Sprintf("%d of %d transition(s) applied", summary.Succeeded, summary.Total)
	return s.ok(message, data)
}

// advanceOne runs the pipeline for a single transition request.
func (s *Service) advanceOne(ctx context.Context, spec transitionSpec) AdvanceResult {
	trigger := types.Trigger(strings.ToLower(strings.TrimSpace(spec.Trigger)))
	result := AdvanceResult{ItemID: spec.ItemID, Trigger: trigger}

	id, err := requireUUID("itemId", spec.ItemID)
	if err != nil {
		result.Error = errorBody(err)
		return result
	}
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		result.Error = errorBody(err)
		return result
	}

	gate, schema, hasReview := s.noteGateFor(ctx, item, trigger)
	res, err := s.workflow.Advance(ctx, item, trigger, spec.Summary, hasReview, gate)
	if err != nil {
		result.Error = errorBody(err)
		s.log.Warn("transition rejected",
			zap.String("item_id", id),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return result
	}

	result.Success = true
	result.Item = res.Item
	result.PreviousRole = res.From
	result.UnblockedItems = res.Unblocked
	for _, ev := range res.Cascaded {
		result.CascadeEvents = append(result.CascadeEvents, CascadeEvent{
			ItemID:       ev.Item.ID,
			Title:        ev.Item.Title,
			PreviousRole: ev.From,
			TargetRole:   ev.Item.Role,
			Trigger:      types.TriggerCascade,
		})
	}

	if schema != nil {
		notes, err := s.store.ListNotesForItem(ctx, id, nil)
		if err != nil {
			s.log.Warn("expected-note lookup failed",
				zap.String("item_id", id), zap.Error(err))
		} else {
			result.ExpectedNotes = noteschema.ExpectedForRole(schema, res.Item.Role, notes)
		}
	}

	s.log.Info("item advanced",
		zap.String("item_id", id),
		zap.String("trigger", string(trigger)),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.Item.Role)),
		zap.Int("cascaded", len(res.Cascaded)),
		zap.Int("unblocked", len(res.Unblocked)))
	return result
}

// noteGateFor resolves the item's note schema from its tags and returns the
// gate to run for the trigger, the schema itself, and whether it declares a
// review phase. Items matching no schema get a nil gate.
func (s *Service) noteGateFor(ctx context.Context, item *types.WorkItem, trigger types.Trigger) (workflow.GateFunc, *noteschema.Schema, bool) {
	tags := types.SplitTags(item.Tags)
	schema := s.schemas.SchemaForTags(tags)
	hasReview := s.schemas.HasReviewPhase(tags)
	if schema == nil {
		return nil, nil, hasReview
	}
	gate := func(it *types.WorkItem, _ *workflow.Resolution) error {
		return s.checkNoteGate(ctx, it, trigger, schema)
	}
	return gate, schema, hasReview
}

// checkNoteGate enforces the schema's required notes for start and complete
// triggers. Other triggers pass through ungated.
func (s *Service) checkNoteGate(ctx context.Context, item *types.WorkItem, trigger types.Trigger, schema *noteschema.Schema) error {
	var missing []string
	switch trigger {
	case types.TriggerStart:
		notes, err := s.store.ListNotesForItem(ctx, item.ID, nil)
		if err != nil {
			return err
		}
		missing = noteschema.MissingForStart(schema, item.Role, notes)
	case types.TriggerComplete:
		notes, err := s.store.ListNotesForItem(ctx, item.ID, nil)
		if err != nil {
			return err
		}
		missing = noteschema.MissingForComplete(schema, notes)
	default:
		return nil
	}
	if len(missing) > 0 {
		return &GateError{Trigger: trigger, Missing: missing}
	}
	return nil
}
