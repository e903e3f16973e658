package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/ui"
)

var treeCmd = &cobra.Command{
	Use:   "tree [id]",
	Short: "Show a work-item tree",
	Long: `Show the subtree under an item, or every root when no id is given.
Children are ordered by creation time.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		depth, _ := cmd.Flags().GetInt("depth")
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		runTree(id, depth)
	},
}

func init() {
	treeCmd.Flags().Int("depth", 0, "Limit rendering depth (0 = unlimited)")
	rootCmd.AddCommand(treeCmd)
}

func runTree(id string, maxDepth int) {
	store := openStore()
	defer closeStore(store)

	var roots []*types.WorkItem
	if id != "" {
		if _, err := uuid.Parse(id); err != nil {
			fatalf("id must be a UUID (got %q)", id)
		}
		item, err := store.GetItem(rootCtx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				fatalf("item %s not found", id)
			}
			fatalf("%v", err)
		}
		roots = []*types.WorkItem{item}
	} else {
		var err error
		roots, err = store.ListRoots(rootCtx)
		if err != nil {
			fatalf("%v", err)
		}
	}

	nodes := make([]*types.TreeNode, 0, len(roots))
	for _, root := range roots {
		descendants, err := store.ListDescendants(rootCtx, root.ID)
		if err != nil {
			fatalf("%v", err)
		}
		nodes = append(nodes, assembleTree(root, descendants))
	}

	if jsonOutput {
		if id != "" {
			outputJSON(nodes[0])
			return
		}
		outputJSON(map[string]any{"roots": nodes, "count": len(nodes)})
		return
	}

	if len(nodes) == 0 {
		fmt.Println(ui.RenderMuted("No items yet. Create one with 'loom create'."))
		return
	}
	var b strings.Builder
	for i, node := range nodes {
		if i > 0 {
			b.WriteString("\n")
		}
		writeTreeNode(&b, node, "", true, true, maxDepth, 0)
	}
	fmt.Print(b.String())
}

// assembleTree folds a flat descendant list into a TreeNode hierarchy,
// ordering siblings by creation time.
func assembleTree(root *types.WorkItem, descendants []*types.WorkItem) *types.TreeNode {
	byParent := make(map[string][]*types.WorkItem)
	for _, item := range descendants {
		if item.ParentID == nil {
			continue
		}
		byParent[*item.ParentID] = append(byParent[*item.ParentID], item)
	}
	for _, siblings := range byParent {
		sort.Slice(siblings, func(i, j int) bool {
			return siblings[i].CreatedAt.Before(siblings[j].CreatedAt)
		})
	}

	var build func(item *types.WorkItem) *types.TreeNode
	build = func(item *types.WorkItem) *types.TreeNode {
		node := &types.TreeNode{Item: item}
		for _, child := range byParent[item.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	return build(root)
}

func writeTreeNode(b *strings.Builder, node *types.TreeNode, prefix string, isRoot, isLast bool, maxDepth, depth int) {
	item := node.Item

	line := ui.RenderRoleIcon(string(item.Role)) + " " + ui.TruncateSimple(item.Title, 60) +
		" " + ui.RenderMuted(shortID(item.ID))
	if item.Priority == types.PriorityHigh {
		line += " " + ui.RenderPriority(string(item.Priority))
	}

	if isRoot {
		b.WriteString(line + "\n")
	} else {
		connector := ui.TreeBranch
		if isLast {
			connector = ui.TreeLast
		}
		b.WriteString(prefix + connector + line + "\n")
	}

	if maxDepth > 0 && depth+1 >= maxDepth && len(node.Children) > 0 {
		childPrefix := childIndent(prefix, isRoot, isLast)
		b.WriteString(childPrefix + ui.TreeLast + ui.RenderMuted(fmt.Sprintf("... %d more level(s), raise --depth", subtreeDepth(node))) + "\n")
		return
	}

	childPrefix := childIndent(prefix, isRoot, isLast)
	for i, child := range node.Children {
		writeTreeNode(b, child, childPrefix, false, i == len(node.Children)-1, maxDepth, depth+1)
	}
}

func childIndent(prefix string, isRoot, isLast bool) string {
	if isRoot {
		return ""
	}
	if isLast {
		return prefix + ui.TreeBlank
	}
	return prefix + ui.TreePipe
}

// subtreeDepth measures how many levels hide below a truncated node.
func subtreeDepth(node *types.TreeNode) int {
	deepest := 0
	for _, child := range node.Children {
		if d := subtreeDepth(child) + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}
