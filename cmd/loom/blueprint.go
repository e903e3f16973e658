package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/blueprint"
	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/ui"
)

var blueprintCmd = &cobra.Command{
	Use:     "blueprint",
	Aliases: []string{"bp"},
	Short:   "Instantiate work-tree templates",
	Long: `Blueprints are TOML work-tree templates: a root item, children with
symbolic refs, ordering edges and seed notes. Built-ins ship with loom; user
blueprints live in the configured blueprints directory and override
built-ins by name.`,
}

var blueprintListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available blueprints",
	Run: func(cmd *cobra.Command, args []string) {
		runBlueprintList()
	},
}

var blueprintShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a blueprint's structure",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBlueprintShow(args[0])
	},
}

var blueprintApplyCmd = &cobra.Command{
	Use:   "apply <name>",
	Short: "Create a work tree from a blueprint",
	Long: `Instantiate a blueprint as one atomic work tree: all items, ordering
edges and seed notes are written in a single transaction.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")
		parent, _ := cmd.Flags().GetString("parent")
		runBlueprintApply(args[0], title, parent)
	},
}

func init() {
	blueprintApplyCmd.Flags().String("title", "", "Override the root item title")
	blueprintApplyCmd.Flags().String("parent", "", "Graft the tree under an existing item")
	blueprintCmd.AddCommand(blueprintListCmd)
	blueprintCmd.AddCommand(blueprintShowCmd)
	blueprintCmd.AddCommand(blueprintApplyCmd)
	rootCmd.AddCommand(blueprintCmd)
}

func blueprintStore() *blueprint.Store {
	return blueprint.NewStore(cfg.BlueprintsDir())
}

func runBlueprintList() {
	bps, err := blueprintStore().List()
	if err != nil {
		fatalf("%v", err)
	}

	if jsonOutput {
		outputJSON(map[string]any{"blueprints": bps, "count": len(bps)})
		return
	}

	if len(bps) == 0 {
		fmt.Println(ui.RenderMuted("No blueprints available."))
		return
	}
	for _, bp := range bps {
		fmt.Printf("%s %s\n", ui.RenderAccent(bp.Name),
			ui.RenderMuted(fmt.Sprintf("(%d item(s), %s)", 1+len(bp.Children), bp.Source)))
		if bp.Description != "" {
			fmt.Printf("  %s\n", ui.TruncateSimple(bp.Description, 76))
		}
	}
}

func runBlueprintShow(name string) {
	bp, err := blueprintStore().Get(name)
	if err != nil {
		fatalf("%v", err)
	}

	if jsonOutput {
		outputJSON(bp)
		return
	}

	fmt.Println(ui.RenderTitle(bp.Name) + " " + ui.RenderMuted("("+bp.Source+")"))
	if bp.Description != "" {
		fmt.Println(bp.Description)
	}
	fmt.Println()
	fmt.Println(ui.RenderCategory("Root") + " " + bp.Root.Title)
	for _, note := range bp.Root.Notes {
		fmt.Printf("  %s %s\n", ui.RenderAccent(note.Key), ui.RenderMuted("("+note.Role+" note)"))
	}
	if len(bp.Children) > 0 {
		fmt.Println(ui.RenderCategory("Children"))
		for i, child := range bp.Children {
			connector := ui.TreeBranch
			if i == len(bp.Children)-1 {
				connector = ui.TreeLast
			}
			line := connector + child.Title + " " + ui.RenderMuted("ref="+child.Ref)
			if child.Parent != "" {
				line += ui.RenderMuted(" under=" + child.Parent)
			}
			if len(child.After) > 0 {
				line += ui.RenderMuted(fmt.Sprintf(" after=%v", child.After))
			}
			fmt.Println(line)
		}
	}
}

func runBlueprintApply(name, title, parent string) {
	if parent != "" {
		if _, err := uuid.Parse(parent); err != nil {
			fatalf("--parent must be a UUID (got %q)", parent)
		}
	}

	bp, err := blueprintStore().Get(name)
	if err != nil {
		fatalf("%v", err)
	}
	raw, err := blueprint.Instantiate(bp, blueprint.Options{
		RootTitle: title,
		ParentID:  parent,
	})
	if err != nil {
		fatalf("%v", err)
	}

	lock := acquireLock()
	defer lock.Release()

	store := openStore()
	defer closeStore(store)
	svc := newService(store, loadSchemas())

	data := finishEnvelope(svc.ManageItems(rootCtx, raw))
	if data == nil {
		return
	}
	root, _ := data["root"].(*types.WorkItem)
	items, _ := data["items"].([]*types.WorkItem)
	edges, _ := data["dependencies"].([]*types.Dependency)
	notes, _ := data["notes"].([]*types.Note)
	if root == nil {
		fatalf("no root returned")
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Created work tree from blueprint %s\n", green("✓"), name)
	fmt.Printf("  Root:  %s %s\n", root.ID, root.Title)
	fmt.Printf("  Items: %d, dependencies: %d, notes: %d\n\n", len(items), len(edges), len(notes))
	fmt.Printf("Inspect it with %s.\n\n", color.New(color.FgCyan).Sprintf("loom tree %s", root.ID))
}
