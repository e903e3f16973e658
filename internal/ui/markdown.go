// Package ui provides terminal styling for loom CLI output.
package ui

import (
	glamour "charm.land/glamour/v2"
	"github.com/charmbracelet/lipgloss"
)

// RenderMarkdown renders markdown text using glamour with the terminal's
// light/dark style. Returns the original text when color is disabled or
// rendering fails, so callers can print the result unconditionally.
// Word wraps at terminal width (or 80 columns if width can't be detected).
func RenderMarkdown(markdown string) string {
	// Raw markdown is friendlier to pipes and log capture
	if !ShouldUseColor() {
		return markdown
	}

	// Cap at 100 chars for readability - wider lines cause eye-tracking fatigue
	const maxReadableWidth = 100
	wrapWidth := 80 // default if terminal size unavailable
	if w := TerminalWidth(); w > 0 {
		wrapWidth = w
	}
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	// glamour v2 dropped WithAutoStyle; select the standard light/dark style
	// from the terminal background as the v2 upgrade guide prescribes
	style := "dark"
	if !lipgloss.HasDarkBackground() {
		style = "light"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}

	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}

	return rendered
}
