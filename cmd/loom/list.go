package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/timeparse"
	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List work items",
	Long: `List work items through the conjunctive filter surface.

Time filters accept RFC 3339 timestamps, compact offsets like 2h or 3d, and
natural phrases like "yesterday" or "last monday":

  loom list --role queue --priority high
  loom list --parent 3f8a... --updated-since 2d
  loom list --tag infra --tag ci --created-since "last week"`,
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd)
	},
}

func init() {
	listCmd.Flags().String("role", "", "Filter by role (queue, work, review, terminal, blocked)")
	listCmd.Flags().String("priority", "", "Filter by priority (high, medium, low)")
	listCmd.Flags().String("parent", "", "Direct children of this item only")
	listCmd.Flags().Int("depth", 0, "Items at this tree depth (0 = roots)")
	listCmd.Flags().StringSlice("tag", nil, "Match any of these tags (repeatable)")
	listCmd.Flags().StringP("query", "q", "", "Case-insensitive substring over title and summary")
	listCmd.Flags().String("created-since", "", "Created after this time")
	listCmd.Flags().String("updated-since", "", "Modified after this time")
	listCmd.Flags().String("sort", "", "Sort by created (default), modified or priority")
	listCmd.Flags().String("order", "", "Sort order: asc or desc (default desc)")
	listCmd.Flags().IntP("limit", "n", 50, "Page size")
	listCmd.Flags().Int("offset", 0, "Rows to skip")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command) {
	filter := buildListFilter(cmd)

	store := openStore()
	defer closeStore(store)

	items, err := store.ListItems(rootCtx, filter)
	if err != nil {
		fatalf("%v", err)
	}
	total, err := store.CountByFilter(rootCtx, filter)
	if err != nil {
		fatalf("%v", err)
	}

	if jsonOutput {
		outputJSON(map[string]any{
			"items": items,
			"count": len(items),
			"total": total,
		})
		return
	}

	if len(items) == 0 {
		fmt.Println(ui.RenderMuted("No items found."))
		return
	}
	for _, item := range items {
		fmt.Println(itemLine(item))
	}
	if total > len(items) {
		fmt.Println(ui.RenderMuted(fmt.Sprintf("%d of %d item(s), use --limit and --offset to page", len(items), total)))
	} else {
		fmt.Println(ui.RenderMuted(fmt.Sprintf("%d item(s)", len(items))))
	}
}

// buildListFilter converts the list flags into an ItemFilter, validating
// vocabulary fields and parsing time expressions against the current clock.
func buildListFilter(cmd *cobra.Command) types.ItemFilter {
	flags := cmd.Flags()

	query, _ := flags.GetString("query")
	sortBy, _ := flags.GetString("sort")
	order, _ := flags.GetString("order")
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")

	filter := types.ItemFilter{
		Query:     query,
		SortBy:    types.NormalizeSortBy(sortBy),
		SortOrder: types.NormalizeSortOrder(order),
		Limit:     limit,
		Offset:    offset,
	}

	if role, _ := flags.GetString("role"); role != "" {
		r := types.Role(role)
		if !r.IsValid() {
			fatalf("invalid role %q (want queue, work, review, terminal or blocked)", role)
		}
		filter.Role = &r
	}
	if priority, _ := flags.GetString("priority"); priority != "" {
		p := types.Priority(priority)
		if !p.IsValid() {
			fatalf("invalid priority %q (want high, medium or low)", priority)
		}
		filter.Priority = &p
	}
	if parent, _ := flags.GetString("parent"); parent != "" {
		if _, err := uuid.Parse(parent); err != nil {
			fatalf("--parent must be a UUID (got %q)", parent)
		}
		filter.ParentID = &parent
	}
	if flags.Changed("depth") {
		depth, _ := flags.GetInt("depth")
		if depth < 0 {
			fatalf("--depth must be >= 0")
		}
		filter.Depth = &depth
	}
	if tags, _ := flags.GetStringSlice("tag"); len(tags) > 0 {
		normalized, err := types.NormalizeTags(tags)
		if err != nil {
			fatalf("%v", err)
		}
		filter.Tags = types.SplitTags(normalized)
	}

	now := time.Now()
	if since, _ := flags.GetString("created-since"); since != "" {
		ts, err := timeparse.Parse(since, now)
		if err != nil {
			fatalf("invalid --created-since: %v", err)
		}
		filter.CreatedAfter = &ts
	}
	if since, _ := flags.GetString("updated-since"); since != "" {
		ts, err := timeparse.Parse(since, now)
		if err != nil {
			fatalf("invalid --updated-since: %v", err)
		}
		filter.ModifiedAfter = &ts
	}

	return filter
}

// itemLine renders one item as a single list row.
func itemLine(item *types.WorkItem) string {
	var b strings.Builder
	b.WriteString(ui.RenderRoleIcon(string(item.Role)))
	b.WriteString(" ")
	b.WriteString(ui.RenderMuted(shortID(item.ID)))
	b.WriteString(" ")
	b.WriteString(ui.RenderPriority(string(item.Priority)))
	b.WriteString(strings.Repeat(" ", 7-len(item.Priority)))
	b.WriteString(ui.TruncateSimple(item.Title, 70))
	if item.Tags != "" {
		b.WriteString(ui.RenderMuted(" [" + item.Tags + "]"))
	}
	return b.String()
}
