package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/types"
)

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a work item",
	Long: `Create a work item from flags, or interactively with --form:

  loom create "Fix importer flake" --priority high --tag infra
  loom create "Write migration guide" --parent 3f8a... --complexity 3
  loom create --form`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if form, _ := cmd.Flags().GetBool("form"); form {
			runCreateForm()
			return
		}
		if len(args) == 0 {
			fatalf("title is required (or use --form)")
		}
		runCreate(cmd, args[0])
	},
}

func init() {
	createCmd.Flags().String("parent", "", "Parent item id")
	createCmd.Flags().StringP("description", "d", "", "Detailed context")
	createCmd.Flags().String("summary", "", "Short outcome summary")
	createCmd.Flags().StringP("priority", "p", "", "Priority: high, medium or low (default medium)")
	createCmd.Flags().Int("complexity", 0, "Complexity 1 to 10")
	createCmd.Flags().StringSlice("tag", nil, "Tags (repeatable)")
	createCmd.Flags().Bool("verify", false, "Mark the item as requiring verification")
	createCmd.Flags().Bool("form", false, "Fill the fields in an interactive form")
	rootCmd.AddCommand(createCmd)
}

// itemSpec mirrors the manage_items create element shape.
type itemSpec struct {
	Title                string   `json:"title"`
	ParentID             string   `json:"parentId,omitempty"`
	Description          string   `json:"description,omitempty"`
	Summary              string   `json:"summary,omitempty"`
	Priority             string   `json:"priority,omitempty"`
	Complexity           *int     `json:"complexity,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	RequiresVerification bool     `json:"requiresVerification,omitempty"`
}

func runCreate(cmd *cobra.Command, title string) {
	flags := cmd.Flags()

	spec := itemSpec{Title: title}
	spec.ParentID, _ = flags.GetString("parent")
	spec.Description, _ = flags.GetString("description")
	spec.Summary, _ = flags.GetString("summary")
	spec.Priority, _ = flags.GetString("priority")
	spec.Tags, _ = flags.GetStringSlice("tag")
	spec.RequiresVerification, _ = flags.GetBool("verify")
	if flags.Changed("complexity") {
		complexity, _ := flags.GetInt("complexity")
		spec.Complexity = &complexity
	}
	if spec.ParentID != "" {
		if _, err := uuid.Parse(spec.ParentID); err != nil {
			fatalf("--parent must be a UUID (got %q)", spec.ParentID)
		}
	}

	createItem(spec)
}

// createItem runs one item through manage_items so the CLI gets the same
// validation and transaction handling as MCP callers.
func createItem(spec itemSpec) {
	raw, err := json.Marshal(map[string]any{
		"op":    "create",
		"items": []itemSpec{spec},
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
	items, _ := data["items"].([]*types.WorkItem)
	if len(items) == 0 {
		fatalf("no item returned")
	}
	printCreatedItem(items[0])
}

func printCreatedItem(item *types.WorkItem) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Created item: %s\n", green("✓"), item.ID)
	fmt.Printf("  Title:    %s\n", item.Title)
	fmt.Printf("  Role:     %s\n", item.Role)
	fmt.Printf("  Priority: %s\n", item.Priority)
	if item.ParentID != nil {
		fmt.Printf("  Parent:   %s\n", *item.ParentID)
	}
	if item.Complexity != nil {
		fmt.Printf("  Complexity: %d/10\n", *item.Complexity)
	}
	if item.Tags != "" {
		fmt.Printf("  Tags:     %s\n", item.Tags)
	}
}
