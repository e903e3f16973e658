package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/ui"
)

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List items that cannot progress",
	Long: `List items parked in the blocked role and items held back by unsatisfied
dependencies, each with the edges in the way.`,
	Run: func(cmd *cobra.Command, args []string) {
		parent, _ := cmd.Flags().GetString("parent")
		limit, _ := cmd.Flags().GetInt("limit")
		runBlocked(parent, limit)
	},
}

func init() {
	blockedCmd.Flags().String("parent", "", "Only report items inside this subtree")
	blockedCmd.Flags().IntP("limit", "n", 0, "Cap the number of entries")
	rootCmd.AddCommand(blockedCmd)
}

func runBlocked(parent string, limit int) {
	store := openStore()
	defer closeStore(store)
	svc := newService(store, loadSchemas())

	raw, err := json.Marshal(map[string]any{
		"parentId": parent,
		"limit":    limit,
	})
	if err != nil {
		fatalf("%v", err)
	}

	data := finishEnvelope(svc.BlockedItems(rootCtx, raw))
	if data == nil {
		return
	}
	blocked, _ := data["blockedItems"].([]*types.BlockedItem)

	if len(blocked) == 0 {
		fmt.Println(ui.RenderMuted("Nothing is blocked."))
		return
	}

	for _, entry := range blocked {
		fmt.Println(itemLine(entry.Item))
		fmt.Println(ui.RenderMuted("   " + blockReason(entry)))
		for _, blocker := range entry.Blockers {
			fmt.Printf("   %s waits for %s %s\n",
				ui.RenderFail("✗"),
				shortID(blocker.FromItemID),
				ui.RenderMuted(fmt.Sprintf("(%s, needs %s)", blocker.Role, blocker.RequiredRole)))
		}
	}
	fmt.Println(ui.RenderMuted(fmt.Sprintf("%d blocked item(s)", len(blocked))))
}

func blockReason(entry *types.BlockedItem) string {
	switch entry.BlockType {
	case types.BlockTypeExplicit:
		return "parked in the blocked role"
	case types.BlockTypeDependency:
		return "held back by dependencies"
	default:
		return entry.BlockType
	}
}
