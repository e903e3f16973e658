// Package ui provides terminal styling for loom CLI output.
package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// Sprint helpers for status messages on the plain fmt output path.
// fatih/color honors NO_COLOR and disables itself on non-TTY output.
var (
	Green  = color.New(color.FgGreen).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Successf formats a success line with a green check prefix.
func Successf(format string, args ...any) string {
	return Green(IconPass) + " " + fmt.Sprintf(format, args...)
}

// Warningf formats a warning line with a yellow warning prefix.
func Warningf(format string, args ...any) string {
	return Yellow(IconWarn) + " " + fmt.Sprintf(format, args...)
}

// Failuref formats a failure line with a red cross prefix.
func Failuref(format string, args ...any) string {
	return Red(IconFail) + " " + fmt.Sprintf(format, args...)
}
