package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/types"
	"github.com/loomhq/loom/internal/ui"
)

const timeLayout = "2006-01-02 15:04"

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one work item in full",
	Long: `Show a work item with its ancestors, children, notes, dependency edges
and role transition history. Long text is truncated unless --full is given;
output taller than the terminal goes through the pager.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		full, _ := cmd.Flags().GetBool("full")
		noPager, _ := cmd.Flags().GetBool("no-pager")
		runShow(args[0], full, noPager)
	},
}

func init() {
	showCmd.Flags().Bool("full", false, "Show complete text instead of truncating")
	showCmd.Flags().Bool("no-pager", false, "Never pipe output through the pager")
	rootCmd.AddCommand(showCmd)
}

func runShow(id string, full, noPager bool) {
	if _, err := uuid.Parse(id); err != nil {
		fatalf("id must be a UUID (got %q)", id)
	}

	store := openStore()
	defer closeStore(store)

	item, err := store.GetItem(rootCtx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fatalf("item %s not found", id)
		}
		fatalf("%v", err)
	}

	chains, err := store.AncestorChains(rootCtx, []string{id})
	if err != nil {
		fatalf("%v", err)
	}
	ancestors := chains[id]

	children, err := store.ListChildren(rootCtx, id)
	if err != nil {
		fatalf("%v", err)
	}
	notes, err := store.ListNotesForItem(rootCtx, id, nil)
	if err != nil {
		fatalf("%v", err)
	}
	edges, err := store.ListDependenciesForItem(rootCtx, id)
	if err != nil {
		fatalf("%v", err)
	}
	transitions, err := store.ListTransitionsForItem(rootCtx, id)
	if err != nil {
		fatalf("%v", err)
	}

	if jsonOutput {
		outputJSON(map[string]any{
			"item":         item,
			"ancestors":    ancestors,
			"children":     children,
			"notes":        notes,
			"dependencies": edges,
			"transitions":  transitions,
		})
		return
	}

	// Titles for the far end of each edge.
	otherIDs := make([]string, 0, len(edges))
	for _, e := range edges {
		other := e.FromItemID
		if other == id {
			other = e.ToItemID
		}
		otherIDs = append(otherIDs, other)
	}
	titles := map[string]string{}
	if len(otherIDs) > 0 {
		others, err := store.GetItemsByIDs(rootCtx, otherIDs)
		if err != nil {
			fatalf("%v", err)
		}
		for _, o := range others {
			titles[o.ID] = o.Title
		}
	}

	out := renderItem(item, ancestors, children, notes, edges, transitions, titles, full)
	if err := ui.ToPager(out, ui.PagerOptions{NoPager: noPager}); err != nil {
		fatalf("%v", err)
	}
}

func renderItem(item *types.WorkItem, ancestors, children []*types.WorkItem,
	notes []*types.Note, edges []*types.Dependency, transitions []*types.RoleTransition,
	titles map[string]string, full bool) string {

	var b strings.Builder

	if len(ancestors) > 0 {
		parts := make([]string, 0, len(ancestors))
		for _, a := range ancestors {
			parts = append(parts, a.Title)
		}
		b.WriteString(ui.RenderMuted(strings.Join(parts, " / ")) + "\n")
	}

	b.WriteString(ui.RenderTitle(item.Title) + "\n")
	b.WriteString(ui.RenderMuted(item.ID) + "\n\n")

	b.WriteString(fmt.Sprintf("  Role:     %s %s", ui.RenderRoleIcon(string(item.Role)), ui.RenderRole(string(item.Role))))
	if item.StatusLabel != "" {
		b.WriteString(ui.RenderMuted(" (" + item.StatusLabel + ")"))
	}
	if item.PreviousRole != nil {
		b.WriteString(ui.RenderMuted(" (was " + string(*item.PreviousRole) + ")"))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Priority: %s\n", ui.RenderPriority(string(item.Priority))))
	if item.Complexity != nil {
		b.WriteString(fmt.Sprintf("  Complexity: %d/10\n", *item.Complexity))
	}
	if item.Tags != "" {
		b.WriteString(fmt.Sprintf("  Tags:     %s\n", item.Tags))
	}
	if item.RequiresVerification {
		b.WriteString("  Marked as requiring verification\n")
	}
	b.WriteString(fmt.Sprintf("  Created:  %s\n", item.CreatedAt.Local().Format(timeLayout)))
	b.WriteString(fmt.Sprintf("  Modified: %s (v%d)\n", item.ModifiedAt.Local().Format(timeLayout), item.Version))

	if item.Summary != "" {
		b.WriteString("\n" + ui.RenderCategory("Summary") + "\n")
		b.WriteString(ui.RenderMarkdown(item.Summary))
		b.WriteString("\n")
	}
	if item.Description != "" {
		body := item.Description
		if !full {
			body = ui.TruncateLines(body, ui.DefaultMaxLines, ui.DefaultContextLines)
		}
		b.WriteString("\n" + ui.RenderCategory("Description") + "\n")
		b.WriteString(ui.RenderMarkdown(body))
		b.WriteString("\n")
	}

	if len(notes) > 0 {
		b.WriteString("\n" + ui.RenderCategory("Notes") + "\n")
		for _, n := range notes {
			b.WriteString(fmt.Sprintf("%s %s\n", ui.RenderAccent(n.Key),
				ui.RenderMuted("("+string(n.Role)+", "+n.ModifiedAt.Local().Format(timeLayout)+")")))
			body := n.Body
			if !full {
				body = ui.TruncateLines(body, ui.DefaultMaxLines, ui.DefaultContextLines)
			}
			b.WriteString(ui.RenderMarkdown(body))
			b.WriteString("\n")
		}
	}

	if len(edges) > 0 {
		b.WriteString("\n" + ui.RenderCategory("Dependencies") + "\n")
		for _, e := range edges {
			b.WriteString("  " + edgeLine(item.ID, e, titles) + "\n")
		}
	}

	if len(children) > 0 {
		b.WriteString("\n" + ui.RenderCategory(fmt.Sprintf("Children (%d)", len(children))) + "\n")
		for _, c := range children {
			b.WriteString("  " + itemLine(c) + "\n")
		}
	}

	if len(transitions) > 0 {
		shown := transitions
		if !full && len(shown) > 5 {
			shown = shown[len(shown)-5:]
		}
		b.WriteString("\n" + ui.RenderCategory("History") + "\n")
		if len(shown) < len(transitions) {
			b.WriteString(ui.RenderMuted(fmt.Sprintf("  ... %d earlier transition(s), use --full\n", len(transitions)-len(shown))))
		}
		for _, t := range shown {
			line := fmt.Sprintf("  %s → %s (%s) %s", t.FromRole, t.ToRole, t.Trigger,
				ui.RenderMuted(t.OccurredAt.Local().Format(timeLayout)))
			if t.Summary != "" {
				line += ": " + ui.TruncateSimple(t.Summary, 60)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

// edgeLine renders a dependency edge from the perspective of one item.
func edgeLine(selfID string, e *types.Dependency, titles map[string]string) string {
	var label, arrow, other string
	if e.Type.Gates() {
		blocker, gated := e.BlockerID()
		if gated == selfID {
			label, arrow, other = "blocked by", "←", blocker
		} else {
			label, arrow, other = "blocks", "→", gated
		}
	} else {
		label, arrow, other = "relates to", "↔", e.FromItemID
		if other == selfID {
			other = e.ToItemID
		}
	}

	line := fmt.Sprintf("%s %s %s", label, arrow, shortID(other))
	if title, ok := titles[other]; ok {
		line += " " + ui.TruncateSimple(title, 50)
	}
	if required, ok := e.EffectiveUnblockRole(); ok && required != types.RoleTerminal {
		line += ui.RenderMuted(" (releases at " + string(required) + ")")
	}
	return line
}
