package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"slash full year", "15/10/2025", "15/10/2025"},
		{"slash short year", "15/10/25", "15/10/2025"},
		{"dash full year", "31-12-2024", "31/12/2024"},
		{"dot full year", "01.02.2026", "01/02/2026"},
		{"dot short year", "01.02.26", "01/02/2026"},
		{"space separated", "15 10 2025", "15/10/2025"},
		{"iso dash", "2025-10-15", "15/10/2025"},
		{"iso slash", "2025/10/15", "15/10/2025"},
		{"iso compact", "20251015", "15/10/2025"},
		{"single digit day and month", "5/3/2025", "05/03/2025"},
		{"surrounding whitespace", "  15/10/2025  ", "15/10/2025"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Date(tt.input)
			assert.Equal(t, tt.want, got.Canonical)
			assert.False(t, got.Fallback, "parseable input must not be flagged as fallback")
		})
	}
}

func TestDateDayFirstPriority(t *testing.T) {
	// 05/03 must read as 5 March, not May 3.
	got := Date("05/03/2025")
	require.False(t, got.Fallback)
	assert.Equal(t, time.March, got.Time.Month())
	assert.Equal(t, 5, got.Time.Day())
}

func TestDateMonthFirstLastResort(t *testing.T) {
	// 10/23 cannot be day-first, so the US layout picks it up.
	got := Date("10/23/2025")
	require.False(t, got.Fallback)
	assert.Equal(t, "23/10/2025", got.Canonical)
}

func TestDateCenturyPivot(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"pivot upper bound stays 2000s", "01/01/30", "01/01/2030"},
		{"pivot lower bound goes 1900s", "01/01/31", "01/01/1931"},
		{"mid-range 1900s", "31-12-45", "31/12/1945"},
		{"high two-digit year", "01/01/99", "01/01/1999"},
		{"low two-digit year", "01/01/07", "01/01/2007"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Date(tt.input)
			require.False(t, got.Fallback)
			assert.Equal(t, tt.want, got.Canonical)
		})
	}
}

func TestDateEmptyUsesToday(t *testing.T) {
	today := time.Now().Format(CanonicalLayout)

	for _, input := range []string{"", "   "} {
		got := Date(input)
		assert.Equal(t, today, got.Canonical)
		assert.False(t, got.Fallback, "empty input means today by contract, not a fallback")
	}
}

func TestDateUnparseableFallsBack(t *testing.T) {
	today := time.Now().Format(CanonicalLayout)

	for _, input := range []string{"not a date", "32/13/2025", "2025", "15/10"} {
		got := Date(input)
		assert.Equal(t, today, got.Canonical, "input %q", input)
		assert.True(t, got.Fallback, "input %q", input)
	}
}

func TestDateIdempotent(t *testing.T) {
	inputs := []string{"15/10/2025", "2024-02-29", "01.01.99", "31-12-45"}

	for _, input := range inputs {
		first := Date(input)
		require.False(t, first.Fallback)
		second := Date(first.Canonical)
		require.False(t, second.Fallback)
		assert.Equal(t, first.Canonical, second.Canonical, "input %q", input)
	}
}
