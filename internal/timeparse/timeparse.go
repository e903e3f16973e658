// Package timeparse resolves time expressions for CLI filter flags.
//
// Expressions are tried in layers:
//  1. compact offsets: [+-]N{h,d,w,m,y}, e.g. +6h, -1d, 2w
//  2. date-only: 2006-01-02, at local midnight
//  3. RFC 3339 timestamps
//  4. natural language: "yesterday", "next monday 2pm", "3 days ago"
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var compactRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

var nlp = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// Parse resolves expr against now, trying each layer in order.
func Parse(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if IsCompact(expr) {
		return ParseCompact(expr, now)
	}
	if t, err := time.ParseInLocation("2006-01-02", expr, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t, nil
	}
	if t, err := ParseNatural(expr, now); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time expression %q", expr)
}

// IsCompact reports whether s matches the compact offset grammar.
func IsCompact(s string) bool {
	return compactRe.MatchString(s)
}

// ParseCompact applies a compact offset to now. Units: h hours, d days,
// w weeks, m months, y years. A missing sign means forward.
func ParseCompact(s string, now time.Time) (time.Time, error) {
	matches := compactRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact offset: %q", s)
	}
	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid offset amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}
	switch matches[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	default: // y, the regexp admits nothing else
		return now.AddDate(amount, 0, 0), nil
	}
}

// ParseNatural resolves an English time expression relative to now.
func ParseNatural(expr string, now time.Time) (time.Time, error) {
	r, err := nlp.Parse(expr, now)
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no time expression found in %q", expr)
	}
	return r.Time, nil
}
