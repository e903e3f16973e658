package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/ui"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Recommend what to work on next",
	Long: `Recommend ready queue items: every dependency satisfied, ranked by
priority, then complexity (simplest first, unknown last), then age.`,
	Run: func(cmd *cobra.Command, args []string) {
		parent, _ := cmd.Flags().GetString("parent")
		limit, _ := cmd.Flags().GetInt("limit")
		details, _ := cmd.Flags().GetBool("details")
		runNext(parent, limit, details)
	},
}

func init() {
	nextCmd.Flags().String("parent", "", "Only consider items under this subtree")
	nextCmd.Flags().IntP("limit", "n", 1, "How many recommendations (1 to 20)")
	nextCmd.Flags().Bool("details", false, "Include each item's notes and dependencies")
	rootCmd.AddCommand(nextCmd)
}

func runNext(parent string, limit int, details bool) {
	store := openStore()
	defer closeStore(store)
	svc := newService(store, loadSchemas())

	raw, err := json.Marshal(map[string]any{
		"parentId":         parent,
		"limit":            limit,
		"includeDetails":   details,
		"includeAncestors": true,
	})
	if err != nil {
		fatalf("%v", err)
	}

	data := finishEnvelope(svc.NextItem(rootCtx, raw))
	if data == nil {
		return
	}
	recs, _ := data["items"].([]tools.Recommendation)

	if len(recs) == 0 {
		fmt.Println(ui.RenderMuted("Nothing is ready to work on. Try 'loom blocked' to see what is stuck."))
		return
	}

	for i, rec := range recs {
		item := rec.Item
		if len(recs) > 1 {
			fmt.Printf("%d. %s\n", i+1, itemLine(item))
		} else {
			fmt.Println(itemLine(item))
		}

		if len(rec.Ancestors) > 0 {
			parts := make([]string, 0, len(rec.Ancestors))
			for _, a := range rec.Ancestors {
				parts = append(parts, a.Title)
			}
			fmt.Println(ui.RenderMuted("   under " + strings.Join(parts, " / ")))
		}
		if item.Complexity != nil {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("   complexity %d/10", *item.Complexity)))
		}
		if details {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("   %d note(s), %d dependency edge(s)", len(rec.Notes), len(rec.Dependencies))))
		}
	}
}
