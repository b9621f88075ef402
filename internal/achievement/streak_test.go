package achievement

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxStreak(t *testing.T) {
	d := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		times    []time.Time
		expected int
	}{
		{"empty", nil, 0},
		{"single day", []time.Time{d}, 1},
		{"gap resets run", []time.Time{d, d.AddDate(0, 0, 1), d.AddDate(0, 0, 2), d.AddDate(0, 0, 5)}, 3},
		{"same day counted once", []time.Time{d, d.Add(time.Hour), d.Add(2 * time.Hour)}, 1},
		{"unordered input", []time.Time{d.AddDate(0, 0, 3), d, d.AddDate(0, 0, 2), d.AddDate(0, 0, 1)}, 4},
		{"later run is longer", []time.Time{d, d.AddDate(0, 0, 2), d.AddDate(0, 0, 3), d.AddDate(0, 0, 4)}, 3},
		{"month boundary", []time.Time{
			time.Date(2026, 2, 27, 8, 0, 0, 0, time.UTC),
			time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		}, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, MaxStreak(tc.times, time.UTC))
		})
	}
}

func TestMaxStreak_Location(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC is the previous evening in New York.
	times := []time.Time{
		time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 1, MaxStreak(times, time.UTC))
	assert.Equal(t, 2, MaxStreak(times, loc))
}

func TestMaxStreak_AcrossDSTChange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	times := []time.Time{
		time.Date(2026, 3, 7, 23, 30, 0, 0, loc),
		time.Date(2026, 3, 8, 23, 30, 0, 0, loc),
		time.Date(2026, 3, 9, 0, 30, 0, 0, loc),
	}
	assert.Equal(t, 3, MaxStreak(times, loc))
}
