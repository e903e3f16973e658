// Package ui provides terminal styling for loom CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	// Semantic status colors (Ayu theme - adaptive light/dark)
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

// Status styles - consistent across all commands
var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
)

// CategoryStyle for section headers - bold with accent color
var CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

// TitleStyle for item titles in list and tree output
var TitleStyle = lipgloss.NewStyle().Bold(true)

// Role icons shown next to the role word in list/tree output.
const (
	IconQueue    = "○"
	IconWork     = "◐"
	IconReview   = "◎"
	IconTerminal = "●"
	IconBlocked  = "✗"
)

// Status icons - consistent semantic indicators
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

// Tree connectors for hierarchical display
const (
	TreeBranch = "├─ "
	TreeLast   = "└─ "
	TreePipe   = "│  "
	TreeBlank  = "   "
)

// Separators
const (
	SeparatorLight = "──────────────────────────────────────────"
	SeparatorHeavy = "══════════════════════════════════════════"
)

// roleStyle maps a lifecycle role to its display style.
func roleStyle(role string) lipgloss.Style {
	switch role {
	case "queue":
		return MutedStyle
	case "work":
		return AccentStyle
	case "review":
		return WarnStyle
	case "terminal":
		return PassStyle
	case "blocked":
		return FailStyle
	}
	return MutedStyle
}

// RoleIcon returns the icon for a lifecycle role, unstyled.
func RoleIcon(role string) string {
	switch role {
	case "queue":
		return IconQueue
	case "work":
		return IconWork
	case "review":
		return IconReview
	case "terminal":
		return IconTerminal
	case "blocked":
		return IconBlocked
	}
	return IconSkip
}

// RenderRole renders a role word with its lifecycle color.
func RenderRole(role string) string {
	return roleStyle(role).Render(role)
}

// RenderRoleIcon renders the role icon with its lifecycle color.
func RenderRoleIcon(role string) string {
	return roleStyle(role).Render(RoleIcon(role))
}

// RenderPriority renders a priority word; high is red, medium yellow, low muted.
func RenderPriority(priority string) string {
	switch priority {
	case "high":
		return FailStyle.Render(priority)
	case "medium":
		return WarnStyle.Render(priority)
	case "low":
		return MutedStyle.Render(priority)
	}
	return MutedStyle.Render(priority)
}

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string {
	return PassStyle.Render(s)
}

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderTitle renders an item title in bold
func RenderTitle(s string) string {
	return TitleStyle.Render(s)
}

// RenderCategory renders a category header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}
