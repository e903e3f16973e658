package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomhq/loom/internal/types"
)

// blockedItemsArgs is the parameter surface of the get_blocked_items tool.
type blockedItemsArgs struct {
	ParentID string `json:"parentId,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// BlockedItems lists everything that cannot progress: items parked in the
// blocked role and items a dependency holds back, each with the blocker
// tuples explaining why. An optional parent narrows the report to one
// subtree.
func (s *Service) BlockedItems(ctx context.Context, raw json.RawMessage) *Envelope {
	var args blockedItemsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return s.fail(err)
	}
	parentID, err := optionalUUID("parentId", args.ParentID)
	if err != nil {
		return s.fail(err)
	}

	blocked, err := s.deps.ListBlocked(ctx)
	if err != nil {
		return s.fail(err)
	}

	if parentID != "" {
		if _, err := s.store.GetItem(ctx, parentID); err != nil {
			return s.fail(err)
		}
		descendants, err := s.store.ListDescendants(ctx, parentID)
		if err != nil {
			return s.fail(err)
		}
		inScope := make(map[string]bool, len(descendants)+1)
		inScope[parentID] = true
		for _, it := range descendants {
			inScope[it.ID] = true
		}
		filtered := blocked[:0]
		for _, b := range blocked {
			if inScope[b.Item.ID] {
				filtered = append(filtered, b)
			}
		}
		blocked = filtered
	}

	if args.Limit > 0 && len(blocked) > args.Limit {
		blocked = blocked[:args.Limit]
	}
	if blocked == nil {
		blocked = []*types.BlockedItem{}
	}

	message := "no blocked items"
	if len(blocked) > 0 {
		message = fmt.Sprintf("%d blocked item(s)", len(blocked))
	}
	return s.ok(message, map[string]any{
		"blockedItems": blocked,
		"count":        len(blocked),
	})
}
