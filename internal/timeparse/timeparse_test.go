package timeparse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/timeparse"
)

// Wednesday, January 15, 2025, 10:00 local time.
var ref = time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

func TestParseCompact(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"+6h", ref.Add(6 * time.Hour)},
		{"-1d", ref.AddDate(0, 0, -1)},
		{"2w", ref.AddDate(0, 0, 14)},
		{"+3m", ref.AddDate(0, 3, 0)},
		{"1y", ref.AddDate(1, 0, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := timeparse.ParseCompact(tc.input, ref)
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "got %v want %v", got, tc.want)
		})
	}

	_, err := timeparse.ParseCompact("tomorrow", ref)
	assert.Error(t, err)
}

func TestIsCompact(t *testing.T) {
	assert.True(t, timeparse.IsCompact("+6h"))
	assert.True(t, timeparse.IsCompact("-1d"))
	assert.True(t, timeparse.IsCompact("12w"))
	assert.False(t, timeparse.IsCompact("6 hours"))
	assert.False(t, timeparse.IsCompact("+6q"))
	assert.False(t, timeparse.IsCompact(""))
}

func TestParseAbsolute(t *testing.T) {
	got, err := timeparse.Parse("2025-02-01", ref)
	require.NoError(t, err)
	want := time.Date(2025, 2, 1, 0, 0, 0, 0, time.Local)
	assert.True(t, got.Equal(want), "got %v want %v", got, want)

	got, err = timeparse.Parse("2025-03-15T14:30:00Z", ref)
	require.NoError(t, err)
	assert.Equal(t, 14, got.UTC().Hour())
	assert.Equal(t, 15, got.UTC().Day())
}

func TestParseNatural(t *testing.T) {
	cases := []struct {
		input    string
		wantDay  int
		wantHour int // -1 skips the hour check
	}{
		{"tomorrow", 16, -1},
		{"yesterday", 14, -1},
		{"next monday", 20, -1},
		{"in 3 days", 18, -1},
		{"3 days ago", 12, -1},
		{"tomorrow at 9am", 16, 9},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := timeparse.Parse(tc.input, ref)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDay, got.Day())
			assert.Equal(t, time.January, got.Month())
			if tc.wantHour >= 0 {
				assert.Equal(t, tc.wantHour, got.Hour())
			}
		})
	}
}

func TestParseRejectsNoise(t *testing.T) {
	for _, input := range []string{"", "   ", "not-a-date", "eleventy o'clock"} {
		_, err := timeparse.Parse(input, ref)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseLayerPrecedence(t *testing.T) {
	// A compact offset keeps the reference clock time rather than being
	// handed to the natural-language layer.
	got, err := timeparse.Parse("+1d", ref)
	require.NoError(t, err)
	assert.True(t, got.Equal(ref.AddDate(0, 0, 1)))

	// ISO dates stay exact.
	got, err = timeparse.Parse("2025-01-20", ref)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Day())
	assert.Equal(t, 0, got.Hour())
}
