package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/loomhq/loom/internal/telemetry"
)

// Register adds every loom tool to the MCP server, pairing each definition
// with its Service handler.
func (s *Service) Register(srv *server.MCPServer) {
	for _, reg := range []struct {
		tool    mcp.Tool
		handler func(context.Context, json.RawMessage) *Envelope
	}{
		{manageItemsTool(), s.ManageItems},
		{queryItemsTool(), s.QueryItems},
		{manageDependenciesTool(), s.ManageDependencies},
		{queryDependenciesTool(), s.QueryDependencies},
		{manageNotesTool(), s.ManageNotes},
		{advanceItemTool(), s.AdvanceItem},
		{completeTreeTool(), s.CompleteTree},
		{nextItemTool(), s.NextItem},
		{blockedItemsTool(), s.BlockedItems},
	} {
		srv.AddTool(reg.tool, s.adapt(reg.tool.Name, reg.handler))
	}
}

// adapt bridges a Service handler into the MCP contract: the request
// arguments are re-encoded to JSON for the typed decoders, and the envelope
// comes back as a single text content block. Handler failures stay inside
// the envelope; a Go error here would mean the response itself could not be
// built.
func (s *Service) adapt(name string, handler func(context.Context, json.RawMessage) *Envelope) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(request.GetArguments())
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments: %w", err)
		}
		env := s.invoke(ctx, name, handler, raw)
		telemetry.CountToolInvocation(ctx, name, env.Success)
		payload, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to encode envelope: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: !env.Success,
		}, nil
	}
}

// invoke runs one handler; a panic becomes an INTERNAL_ERROR envelope.
func (s *Service) invoke(ctx context.Context, name string, handler func(context.Context, json.RawMessage) *Envelope, raw json.RawMessage) (env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tool handler panicked", zap.String("tool", name), zap.Any("panic", r))
			env = s.failCode(CodeInternal, fmt.Sprintf("%s: internal error", name), nil)
		}
	}()
	return handler(ctx, raw)
}

// objectItems declares an array property whose elements are free-form
// objects; the element contract lives in the property description.
func objectItems() mcp.PropertyOption {
	return mcp.Items(map[string]any{"type": "object"})
}

func manageItemsTool() mcp.Tool {
	return mcp.NewTool("manage_items",
		mcp.WithDescription("Create, update or delete work items. Create accepts either a flat items[] batch (all-or-nothing) or work-tree mode: root{} plus children[] with symbolic refs, dependencies[] keyed by refs, and notes[], all written in one transaction. Update applies partial patches with optimistic version checks, element by element. Delete removes by ids[] or a whole subtree via rootId with includeDescendants:true."),
		mcp.WithString("op",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum("create", "update", "delete"),
		),
		mcp.WithArray("items",
			objectItems(),
			mcp.Description("create: item specs {title, parentId?, description?, summary?, priority?, complexity?, requiresVerification?, metadata?, tags?[]}; update: patches {id, version, ...fields to change}"),
		),
		mcp.WithObject("root",
			mcp.Description("Work-tree mode: root item spec, plus optional ref (default \"root\")"),
		),
		mcp.WithArray("children",
			objectItems(),
			mcp.Description("Work-tree mode: child item specs, each with a unique ref and an optional parentRef naming an earlier ref (default: the root)"),
		),
		mcp.WithArray("dependencies",
			objectItems(),
			mcp.Description("Work-tree mode: edges {from, to, type?, unblockAt?} where from/to are refs from this call or existing item UUIDs"),
		),
		mcp.WithArray("notes",
			objectItems(),
			mcp.Description("Work-tree mode: notes {ref, key, role, body} attached to items created in this call"),
		),
		mcp.WithArray("ids",
			mcp.WithStringItems(),
			mcp.Description("delete: item ids to remove; descendants of each are removed too"),
		),
		mcp.WithString("rootId",
			mcp.Description("delete: root of the subtree to remove; requires includeDescendants:true"),
		),
		mcp.WithBoolean("includeDescendants",
			mcp.Description("delete: acknowledge that deleting by rootId removes the whole subtree"),
		),
	)
}

func queryItemsTool() mcp.Tool {
	return mcp.NewTool("query_items",
		mcp.WithDescription("Read work items. get fetches one item by id with optional children, ancestors, notes, dependencies and transition history. search filters by parent, depth, role, priority, tags, free text and time windows with sorting and pagination. overview returns counts by role, ready and blocked totals, per-root progress and recently modified items."),
		mcp.WithString("op",
			mcp.Required(),
			mcp.Description("Query to run"),
			mcp.Enum("get", "search", "overview"),
		),
		mcp.WithString("id", mcp.Description("get: item id")),
		mcp.WithBoolean("includeChildren", mcp.Description("get: include direct children")),
		mcp.WithBoolean("includeAncestors", mcp.Description("get: include the ancestor chain, root first")),
		mcp.WithBoolean("includeNotes", mcp.Description("get: include the item's notes")),
		mcp.WithBoolean("includeDependencies", mcp.Description("get: include edges touching the item")),
		mcp.WithBoolean("includeTransitions", mcp.Description("get: include the role transition audit trail")),
		mcp.WithString("query", mcp.Description("search: case-insensitive substring over title and summary")),
		mcp.WithString("parentId", mcp.Description("search: direct children of this item only")),
		mcp.WithNumber("depth", mcp.Description("search: items at this tree depth (0 = roots)")),
		mcp.WithString("role", mcp.Description("search: queue, work, review, terminal or blocked")),
		mcp.WithString("priority", mcp.Description("search: high, medium or low")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("search: match any of these tags")),
		mcp.WithString("createdAfter", mcp.Description("search: RFC 3339 lower bound on creation time")),
		mcp.WithString("createdBefore", mcp.Description("search: RFC 3339 upper bound on creation time")),
		mcp.WithString("modifiedAfter", mcp.Description("search: RFC 3339 lower bound on modification time")),
		mcp.WithString("modifiedBefore", mcp.Description("search: RFC 3339 upper bound on modification time")),
		mcp.WithString("roleChangedAfter", mcp.Description("search: RFC 3339 lower bound on the last role change")),
		mcp.WithString("roleChangedBefore", mcp.Description("search: RFC 3339 upper bound on the last role change")),
		mcp.WithString("sortBy", mcp.Description("search: created (default), modified or priority")),
		mcp.WithString("sortOrder", mcp.Description("search: asc or desc (default desc)")),
		mcp.WithNumber("limit", mcp.Description("search: page size, default 50, max 500")),
		mcp.WithNumber("offset", mcp.Description("search: rows to skip")),
		mcp.WithNumber("recentLimit", mcp.Description("overview: how many recent items to include (default 5)")),
	)
}

func manageDependenciesTool() mcp.Tool {
	return mcp.NewTool("manage_dependencies",
		mcp.WithDescription("Create or delete dependency edges between work items. Create takes explicit edges[] or a pattern (linear over itemIds[], fan-out from fromId to toIds[], fan-in from fromIds[] to toId); every batch is atomic and cycle-checked before insert. Delete removes one edge by id, the edges between two endpoints, or every edge touching an item with deleteAll:true."),
		mcp.WithString("op",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum("create", "delete"),
		),
		mcp.WithArray("edges",
			objectItems(),
			mcp.Description("create: explicit edges {fromId, toId, type?, unblockAt?}"),
		),
		mcp.WithString("pattern",
			mcp.Description("create: expand a shape instead of explicit edges"),
			mcp.Enum("linear", "fan-out", "fan-in"),
		),
		mcp.WithArray("itemIds", mcp.WithStringItems(), mcp.Description("linear: chain these items in order, each blocking the next")),
		mcp.WithString("fromId", mcp.Description("fan-out: the blocking item; delete: edge source")),
		mcp.WithArray("toIds", mcp.WithStringItems(), mcp.Description("fan-out: items gated by fromId")),
		mcp.WithArray("fromIds", mcp.WithStringItems(), mcp.Description("fan-in: items that must finish first")),
		mcp.WithString("toId", mcp.Description("fan-in: the gated item; delete: edge target")),
		mcp.WithString("type",
			mcp.Description("Edge type for created edges and the endpoint-pair delete filter. BLOCKS and IS_BLOCKED_BY gate; RELATES_TO never does. Default BLOCKS."),
			mcp.Enum("BLOCKS", "IS_BLOCKED_BY", "RELATES_TO"),
		),
		mcp.WithString("unblockAt",
			mcp.Description("Role the blocker must reach to release the gate (default terminal)"),
			mcp.Enum("work", "review", "terminal"),
		),
		mcp.WithString("id", mcp.Description("delete: edge id")),
		mcp.WithString("itemId", mcp.Description("delete: remove every edge touching this item (requires deleteAll:true)")),
		mcp.WithBoolean("deleteAll", mcp.Description("delete: acknowledge removing all edges for itemId")),
	)
}

func queryDependenciesTool() mcp.Tool {
	return mcp.NewTool("query_dependencies",
		mcp.WithDescription("Inspect the dependency graph around one item: its edges (incoming, outgoing or all), whether it is currently blocked and by whom, and, unless neighborsOnly is set, a topological chain through the connected gating subgraph with its depth."),
		mcp.WithString("itemId", mcp.Required(), mcp.Description("Item whose graph neighbourhood to inspect")),
		mcp.WithString("direction",
			mcp.Description("Which edges to return relative to the item (default all)"),
			mcp.Enum("incoming", "outgoing", "all"),
		),
		mcp.WithString("type",
			mcp.Description("Only edges of this type"),
			mcp.Enum("BLOCKS", "IS_BLOCKED_BY", "RELATES_TO"),
		),
		mcp.WithBoolean("includeItemInfo", mcp.Description("Attach id, title, role and priority of each edge endpoint")),
		mcp.WithBoolean("neighborsOnly", mcp.Description("Skip the connected-subgraph chain computation")),
		mcp.WithNumber("maxDepth", mcp.Description("Bound on chain traversal hops (default 50)")),
	)
}

func manageNotesTool() mcp.Tool {
	return mcp.NewTool("manage_notes",
		mcp.WithDescription("Attach structured notes to work items or remove them. Upsert writes notes[] element by element, replacing any previous note with the same (itemId, key). Delete removes by ids[], by (itemId, key), or every note on an item via itemId alone."),
		mcp.WithString("op",
			mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum("upsert", "delete"),
		),
		mcp.WithArray("notes",
			objectItems(),
			mcp.Description("upsert: notes {itemId, key, role, body}; role is the lifecycle phase the note documents (queue, work or review)"),
		),
		mcp.WithArray("ids", mcp.WithStringItems(), mcp.Description("delete: note ids")),
		mcp.WithString("itemId", mcp.Description("delete: scope to this item")),
		mcp.WithString("key", mcp.Description("delete: with itemId, remove just this key")),
	)
}

func advanceItemTool() mcp.Tool {
	return mcp.NewTool("advance_item",
		mcp.WithDescription("Apply lifecycle triggers to work items: start, complete, block, hold, resume or cancel. Each transition validates dependencies, enforces the item's note schema gates, applies atomically with an audit record, cascade-completes ancestors whose children are all terminal, and reports items the change unblocked plus the notes expected in the new role."),
		mcp.WithArray("transitions",
			mcp.Required(),
			objectItems(),
			mcp.Description("Transitions {itemId, trigger, summary?}; summary is stored on completion and in the audit trail"),
		),
	)
}

func completeTreeTool() mcp.Tool {
	return mcp.NewTool("complete_tree",
		mcp.WithDescription("Drive a whole subtree (rootId) or an explicit set (itemIds[]) to terminal in dependency order: blockers before the items they gate, children before parents. Items already terminal are reported as skipped; when an item fails its gate or cannot complete, its dependents are skipped rather than attempted. Trigger cancel bypasses note gates and labels items cancelled."),
		mcp.WithString("rootId", mcp.Description("Complete this item and every descendant")),
		mcp.WithArray("itemIds", mcp.WithStringItems(), mcp.Description("Complete exactly these items (mutually exclusive with rootId)")),
		mcp.WithString("trigger",
			mcp.Description("complete (default) or cancel"),
			mcp.Enum("complete", "cancel"),
		),
		mcp.WithString("summary", mcp.Description("Completion summary recorded on each item")),
	)
}

func nextItemTool() mcp.Tool {
	return mcp.NewTool("get_next_item",
		mcp.WithDescription("Recommend what to work on next: queue items with every dependency satisfied, ranked by priority, then complexity (simplest first, unknown last), then age. Scope to one subtree with parentId."),
		mcp.WithString("parentId", mcp.Description("Only consider items under this subtree")),
		mcp.WithNumber("limit", mcp.Description("How many recommendations to return, 1 to 20 (default 1)")),
		mcp.WithBoolean("includeDetails", mcp.Description("Attach each item's notes and dependency edges")),
		mcp.WithBoolean("includeAncestors", mcp.Description("Attach each item's ancestor chain, root first")),
	)
}

func blockedItemsTool() mcp.Tool {
	return mcp.NewTool("get_blocked_items",
		mcp.WithDescription("List everything that cannot progress: items parked in the blocked role and items held back by unsatisfied dependencies, each with blocker tuples naming the blocking item, its current role and the role it must reach."),
		mcp.WithString("parentId", mcp.Description("Only report items inside this subtree")),
		mcp.WithNumber("limit", mcp.Description("Cap the number of entries returned")),
	)
}
