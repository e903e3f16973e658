package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/types"
)

// runCreateForm collects the item fields interactively and feeds them
// through the same create path as the flag form.
func runCreateForm() {
	var (
		title         string
		description   string
		summary       string
		priority      string
		complexityStr string
		tagsInput     string
		parentID      string
		verify        bool
	)

	priorityOptions := []huh.Option[string]{
		huh.NewOption("High", string(types.PriorityHigh)),
		huh.NewOption("Medium (default)", string(types.PriorityMedium)),
		huh.NewOption("Low", string(types.PriorityLow)),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Description("What needs to happen (required)").
				Placeholder("e.g., Stabilise the importer retry loop").
				Value(&title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					if len(s) > types.MaxTitleLength {
						return fmt.Errorf("title must be %d characters or less", types.MaxTitleLength)
					}
					return nil
				}),

			huh.NewText().
				Title("Description").
				Description("Context for whoever picks this up").
				CharLimit(5000).
				Value(&description),

			huh.NewSelect[string]().
				Title("Priority").
				Options(priorityOptions...).
				Value(&priority),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Complexity").
				Description("1 (trivial) to 10 (heroic), empty for unknown").
				Value(&complexityStr).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < types.MinComplexity || n > types.MaxComplexity {
						return fmt.Errorf("complexity must be %d to %d", types.MinComplexity, types.MaxComplexity)
					}
					return nil
				}),

			huh.NewInput().
				Title("Tags").
				Description("Comma-separated (optional)").
				Placeholder("e.g., infra, importer").
				Value(&tagsInput),

			huh.NewInput().
				Title("Parent").
				Description("Parent item id (optional)").
				Value(&parentID).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					if _, err := uuid.Parse(strings.TrimSpace(s)); err != nil {
						return fmt.Errorf("parent must be a UUID")
					}
					return nil
				}),

			huh.NewConfirm().
				Title("Mark as requiring verification?").
				Value(&verify),
		),

		huh.NewGroup(
			huh.NewText().
				Title("Summary").
				Description("Optional short outcome summary").
				CharLimit(types.MaxSummaryLength).
				Value(&summary),

			huh.NewConfirm().
				Title("Create this item?").
				Affirmative("Create").
				Negative("Cancel"),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, "Item creation cancelled.")
			os.Exit(0)
		}
		fatalf("form error: %v", err)
	}

	spec := itemSpec{
		Title:                strings.TrimSpace(title),
		ParentID:             strings.TrimSpace(parentID),
		Description:          description,
		Summary:              summary,
		Priority:             priority,
		RequiresVerification: verify,
	}
	if s := strings.TrimSpace(complexityStr); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			spec.Complexity = &n
		}
	}
	for _, tag := range strings.Split(tagsInput, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			spec.Tags = append(spec.Tags, tag)
		}
	}

	createItem(spec)
}
