// Package ui provides terminal styling for loom CLI output.
package ui

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Default truncation settings
const (
	DefaultMaxLines     = 15  // Default max lines for description display
	DefaultContextLines = 5   // Lines to show at beginning and end when truncating
	DefaultMaxChars     = 500 // Default max chars for inline truncation
	DefaultContextChars = 200 // Chars to show at beginning and end when truncating
)

// TruncateLines truncates text to maxLines, showing context from beginning and end.
// If the text has fewer lines than maxLines, returns it unchanged.
// Shows contextLines at the beginning and end with a truncation indicator in the middle.
func TruncateLines(text string, maxLines, contextLines int) string {
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	totalLines := len(lines)

	if totalLines <= maxLines {
		return text
	}

	if contextLines < 1 {
		contextLines = DefaultContextLines
	}
	// If maxLines is too small for head+marker+tail, just show first maxLines
	if maxLines < contextLines*2+3 {
		return strings.Join(lines[:maxLines], "\n") + "\n..."
	}

	hiddenLines := totalLines - contextLines*2

	var result strings.Builder
	result.WriteString(strings.Join(lines[:contextLines], "\n"))
	result.WriteString("\n")
	result.WriteString(RenderMuted(strings.Repeat("─", 40)))
	result.WriteString("\n")
	result.WriteString(RenderMuted("... (" + strconv.Itoa(hiddenLines) + " lines hidden, use --full to see complete text)"))
	result.WriteString("\n")
	result.WriteString(RenderMuted(strings.Repeat("─", 40)))
	result.WriteString("\n")
	result.WriteString(strings.Join(lines[totalLines-contextLines:], "\n"))

	return result.String()
}

// TruncateChars truncates text to maxChars, showing context from beginning and end.
// Uses word-boundary truncation to avoid cutting words in half.
func TruncateChars(text string, maxChars, contextChars int) string {
	if text == "" {
		return text
	}

	runeCount := utf8.RuneCountInString(text)

	if runeCount <= maxChars {
		return text
	}

	if contextChars < 50 {
		contextChars = DefaultContextChars
	}
	markerLen := 50 // approximate length of truncation marker

	// If maxChars is too small for head+marker+tail, truncate from the end only
	if maxChars < contextChars*2+markerLen {
		return truncateAtWordBoundary(text, maxChars-3) + "..."
	}

	runes := []rune(text)
	beginText := truncateAtWordBoundary(string(runes[:contextChars]), contextChars)
	endText := truncateFromWordBoundary(string(runes[runeCount-contextChars:]), contextChars)

	hiddenChars := runeCount - utf8.RuneCountInString(beginText) - utf8.RuneCountInString(endText)

	return beginText + "\n" + RenderMuted("... ["+strconv.Itoa(hiddenChars)+" chars hidden] ...") + "\n" + endText
}

// TruncateSimple performs simple end truncation with "..." suffix.
// UTF-8 safe.
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}

// WrapText wraps text at word boundaries to fit within maxWidth.
// Preserves existing line breaks.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 80
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}
		result.WriteString(wrapLine(line, maxWidth))
	}

	return result.String()
}

// wrapLine wraps a single line at word boundaries.
func wrapLine(line string, maxWidth int) string {
	if utf8.RuneCountInString(line) <= maxWidth {
		return line
	}

	var result strings.Builder
	currentLen := 0

	for _, word := range strings.Fields(line) {
		wordLen := utf8.RuneCountInString(word)

		// First word on a line is kept even when it overflows
		if currentLen == 0 {
			result.WriteString(word)
			currentLen = wordLen
			continue
		}

		if currentLen+1+wordLen <= maxWidth {
			result.WriteString(" ")
			result.WriteString(word)
			currentLen += 1 + wordLen
		} else {
			result.WriteString("\n")
			result.WriteString(word)
			currentLen = wordLen
		}
	}

	return result.String()
}

// truncateAtWordBoundary truncates text to approximately maxLen chars,
// preferring to break at word boundaries.
func truncateAtWordBoundary(text string, maxLen int) string {
	runes := []rune(text)
	if maxLen >= len(runes) {
		return text
	}

	// Look for the last whitespace within the final 50 chars of the cut
	lastSpace := -1
	for i := maxLen - 1; i >= maxLen-50 && i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			lastSpace = i
			break
		}
	}

	if lastSpace > 0 {
		return strings.TrimRight(string(runes[:lastSpace]), " \t")
	}

	return string(runes[:maxLen])
}

// truncateFromWordBoundary removes text from the beginning to approximately
// match maxLen, preferring to break at word boundaries.
func truncateFromWordBoundary(text string, maxLen int) string {
	runeCount := utf8.RuneCountInString(text)
	if runeCount <= maxLen {
		return text
	}

	runes := []rune(text)
	startPos := runeCount - maxLen

	// Look for the first whitespace after the cut
	for i := startPos; i < startPos+50 && i < runeCount; i++ {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return strings.TrimLeft(string(runes[i+1:]), " \t")
		}
	}

	return string(runes[startPos:])
}

// ShouldTruncate returns true if text exceeds the given thresholds.
func ShouldTruncate(text string, maxLines, maxChars int) bool {
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		return true
	}
	if maxLines > 0 && strings.Count(text, "\n")+1 > maxLines {
		return true
	}
	return false
}
