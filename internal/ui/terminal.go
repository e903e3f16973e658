// Package ui provides terminal styling for loom CLI output.
package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the column width of the terminal attached to stdout,
// or 0 when stdout is not a terminal or the size cannot be read.
func TerminalWidth() int {
	if !IsTerminal() {
		return 0
	}
	width, _ := terminalSize()
	return width
}

// terminalSize returns the stdout terminal dimensions, or zeros on error.
func terminalSize() (width, height int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0
	}
	return w, h
}

// ShouldUseColor reports whether output should include ANSI color.
// Honors the informal NO_COLOR / CLICOLOR conventions:
//   - NO_COLOR set (any value) disables color, even over CLICOLOR_FORCE
//   - CLICOLOR=0 disables color
//   - CLICOLOR_FORCE set (and not "0") enables color even without a TTY
//   - otherwise color follows TTY detection
func ShouldUseColor() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether output should include emoji and icon glyphs.
// LOOM_NO_EMOJI disables them for terminals with spotty glyph support.
func ShouldUseEmoji() bool {
	if os.Getenv("LOOM_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}
