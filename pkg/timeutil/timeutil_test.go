package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to Day
		want     int
	}{
		{"same day", Day{2024, time.March, 10}, Day{2024, time.March, 10}, 0},
		{"next day", Day{2024, time.March, 10}, Day{2024, time.March, 11}, 1},
		{"across leap day", Day{2024, time.February, 28}, Day{2024, time.March, 1}, 2},
		{"across year", Day{2023, time.December, 31}, Day{2024, time.January, 1}, 1},
		{"backwards", Day{2024, time.March, 11}, Day{2024, time.March, 8}, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.from, tt.to))
		})
	}
}

func TestDayOf_UsesOwnLocation(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*60*60)
	// 22:00 UTC on the 10th is already the 11th in UTC+5.
	utc := time.Date(2024, time.March, 10, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, Day{2024, time.March, 10}, DayOf(utc))
	assert.Equal(t, Day{2024, time.March, 11}, DayOf(utc.In(almaty)))
}

func TestIsConsecutiveDay(t *testing.T) {
	a := time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, time.March, 11, 0, 1, 0, 0, time.UTC)

	assert.True(t, IsConsecutiveDay(a, b))
	assert.False(t, IsConsecutiveDay(b, a))
	assert.False(t, IsSameDay(a, b))
	assert.True(t, IsSameDay(a, StartOfDay(a)))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
}

func TestDay_AddDaysAndString(t *testing.T) {
	d := Day{2024, time.December, 31}
	assert.Equal(t, "2025-01-01", d.AddDays(1).String())
	assert.Equal(t, "2024-12-30", d.AddDays(-1).String())
}
