package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/types"
)

// Dependency creation patterns accepted by manage_dependencies.
const (
	patternLinear = "linear"
	patternFanOut = "fan-out"
	patternFanIn  = "fan-in"
)

// manageDependenciesArgs is the parameter surface of manage_dependencies.
// Top-level Type and UnblockAt are per-edge defaults for both explicit
// edges and pattern expansion.
type manageDependenciesArgs struct {
	Op string `json:"op"`

	// Creation: explicit edges or one pattern.
	Edges     []edgeSpec `json:"edges,omitempty"`
	Pattern   string     `json:"pattern,omitempty"`
	ItemIDs   []string   `json:"itemIds,omitempty"` // linear: ordered chain
	FromID    string     `json:"fromId,omitempty"`  // fan-out source
	ToIDs     []string   `json:"toIds,omitempty"`   // fan-out targets
	FromIDs   []string   `json:"fromIds,omitempty"` // fan-in sources
	ToID      string     `json:"toId,omitempty"`    // fan-in target
	Type      string     `json:"type,omitempty"`
	UnblockAt string     `json:"unblockAt,omitempty"`

	// Deletion: by edge id, by endpoints, or everything touching an item.
	ID        string `json:"id,omitempty"`
	ItemID    string `json:"itemId,omitempty"`
	DeleteAll bool   `json:"deleteAll,omitempty"`
}

// edgeSpec is one explicit dependency in a create call.
type edgeSpec struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type,omitempty"`
	UnblockAt string `json:"unblockAt,omitempty"`
}

// ManageDependencies dispatches the manage_dependencies tool. All creation
// paths funnel into one atomic, cycle-checked batch insert.
func (s *Service) ManageDependencies(ctx context.Context, raw json.RawMessage) *Envelope {
	var args manageDependenciesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}

	switch args.Op {
	case "create":
		return s.createDependencies(ctx, &args)
	case "delete":
		return s.deleteDependencies(ctx, &args)
	default:
		return s.fail(validationf("op must be one of create, delete (got %q)", args.Op))
	}
}

// buildEdge assembles and validates one dependency. An empty type defaults
// to BLOCKS; type is normalized uppercase and unblockAt lowercase to match
// their wire forms.
func buildEdge(fromID, toID, typeStr, unblockAt string) (*types.Dependency, error) {
	from, err := requireUUID("from", fromID)
	if err != nil {
		return nil, err
	}
	to, err := requireUUID("to", toID)
	if err != nil {
		return nil, err
	}

	depType := types.DepBlocks
	if typeStr != "" {
		depType = types.DependencyType(strings.ToUpper(typeStr))
		if !depType.IsValid() {
			return nil, validationf("type must be one of BLOCKS, IS_BLOCKED_BY, RELATES_TO (got %q)", typeStr)
		}
	}

	dep := &types.Dependency{
		ID:         newID(),
		FromItemID: from,
		ToItemID:   to,
		Type:       depType,
	}
	if unblockAt != "" {
		role := types.Role(strings.ToLower(unblockAt))
		dep.UnblockAt = &role
	}
	if err := dep.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return dep, nil
}

// expandEdges turns the creation arguments into a concrete edge batch.
func expandEdges(args *manageDependenciesArgs) ([]*types.Dependency, error) {
	if args.Pattern != "" && len(args.Edges) > 0 {
		return nil, validationf("pass either edges or a pattern, not both")
	}

	switch args.Pattern {
	case "":
		if len(args.Edges) == 0 {
			return nil, validationf("create requires edges or a pattern")
		}
		edges := make([]*types.Dependency, 0, len(args.Edges))
		for i, spec := range args.Edges {
			edge, err := buildEdge(spec.From, spec.To,
				firstNonEmpty(spec.Type, args.Type),
				firstNonEmpty(spec.UnblockAt, args.UnblockAt))
			if err != nil {
				return nil, fmt.Errorf("edges[%d]: %w", i, err)
			}
			edges = append(edges, edge)
		}
		return edges, nil

	case patternLinear:
		if len(args.ItemIDs) < 2 {
			return nil, validationf("linear pattern requires at least 2 itemIds (got %d)", len(args.ItemIDs))
		}
		edges := make([]*types.Dependency, 0, len(args.ItemIDs)-1)
		for i := 0; i < len(args.ItemIDs)-1; i++ {
			edge, err := buildEdge(args.ItemIDs[i], args.ItemIDs[i+1], args.Type, args.UnblockAt)
			if err != nil {
				return nil, fmt.Errorf("itemIds[%d..%d]: %w", i, i+1, err)
			}
			edges = append(edges, edge)
		}
		return edges, nil

	case patternFanOut:
		if args.FromID == "" || len(args.ToIDs) == 0 {
			return nil, validationf("fan-out pattern requires fromId and a non-empty toIds")
		}
		edges := make([]*types.Dependency, 0, len(args.ToIDs))
		for i, to := range args.ToIDs {
			edge, err := buildEdge(args.FromID, to, args.Type, args.UnblockAt)
			if err != nil {
				return nil, fmt.Errorf("toIds[%d]: %w", i, err)
			}
			edges = append(edges, edge)
		}
		return edges, nil

	case patternFanIn:
		if len(args.FromIDs) == 0 || args.ToID == "" {
			return nil, validationf("fan-in pattern requires a non-empty fromIds and toId")
		}
		edges := make([]*types.Dependency, 0, len(args.FromIDs))
		for i, from := range args.FromIDs {
			edge, err := buildEdge(from, args.ToID, args.Type, args.UnblockAt)
			if err != nil {
				return nil, fmt.Errorf("fromIds[%d]: %w", i, err)
			}
			edges = append(edges, edge)
		}
		return edges, nil

	default:
		return nil, validationf("pattern must be one of linear, fan-out, fan-in (got %q)", args.Pattern)
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// createDependencies inserts the expanded batch atomically. Endpoint
// existence, duplicates and cycles are enforced by the storage layer inside
// one transaction, so a failing edge rejects the whole batch.
func (s *Service) createDependencies(ctx context.Context, args *manageDependenciesArgs) *Envelope {
	edges, err := expandEdges(args)
	if err != nil {
		return s.fail(err)
	}
	if err := s.store.CreateDependencies(ctx, edges); err != nil {
		return s.fail(err)
	}
	s.log.Info("dependencies created", zap.Int("count", len(edges)))
	return s.ok(fmt.Sprintf("created %d dependency(ies)", len(edges)), map[string]any{
		"dependencies": edges,
		"count":        len(edges),
	})
}

// deleteDependencies removes edges by id, by endpoint pair, or all edges
// touching one item.
func (s *Service) deleteDependencies(ctx context.Context, args *manageDependenciesArgs) *Envelope {
	switch {
	case args.ID != "":
		id, err := requireUUID("id", args.ID)
		if err != nil {
			return s.fail(err)
		}
		if err := s.store.DeleteDependency(ctx, id); err != nil {
			return s.fail(err)
		}
		return s.ok("deleted 1 dependency", map[string]any{"deletedCount": 1})

	case args.FromID != "" && args.ToID != "":
		from, err := requireUUID("fromId", args.FromID)
		if err != nil {
			return s.fail(err)
		}
		to, err := requireUUID("toId", args.ToID)
		if err != nil {
			return s.fail(err)
		}
		var depType *types.DependencyType
		if args.Type != "" {
			dt := types.DependencyType(strings.ToUpper(args.Type))
			if !dt.IsValid() {
				return s.fail(validationf("type must be one of BLOCKS, IS_BLOCKED_BY, RELATES_TO (got %q)", args.Type))
			}
			depType = &dt
		}
		count, err := s.store.DeleteDependenciesByEndpoints(ctx, from, to, depType)
		if err != nil {
			return s.fail(err)
		}
		return s.ok(fmt.Sprintf("deleted %d dependency(ies)", count), map[string]any{"deletedCount": count})

	case args.ItemID != "":
		id, err := requireUUID("itemId", args.ItemID)
		if err != nil {
			return s.fail(err)
		}
		if !args.DeleteAll {
			return s.fail(validationf("deleting by itemId removes every edge touching it; set deleteAll true to confirm"))
		}
		count, err := s.store.DeleteDependenciesForItem(ctx, id)
		if err != nil {
			return s.fail(err)
		}
		return s.ok(fmt.Sprintf("deleted %d dependency(ies)", count), map[string]any{"deletedCount": count})

	default:
		return s.fail(validationf("delete requires id, fromId+toId, or itemId with deleteAll"))
	}
}
