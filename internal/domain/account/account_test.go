package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNextStreak(t *testing.T) {
	today := time.Date(2024, time.May, 20, 9, 30, 0, 0, time.UTC)
	todayDate := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		lastLogin  *time.Time
		current    int
		wantStreak int
	}{
		{"yesterday continues", day(2024, time.May, 19), 5, 6},
		{"three days ago resets", day(2024, time.May, 17), 5, 1},
		{"two days ago resets", day(2024, time.May, 18), 5, 1},
		{"same day unchanged", day(2024, time.May, 20), 5, 5},
		{"no prior login", nil, 0, 1},
		{"future date resets", day(2024, time.May, 22), 4, 1},
		{"across month", day(2024, time.April, 30), 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streak, last := NextStreak(tt.lastLogin, tt.current, today)
			assert.Equal(t, tt.wantStreak, streak)
			assert.Equal(t, todayDate, last)
		})
	}
}

func TestNextStreak_MonthBoundaryContinues(t *testing.T) {
	today := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	streak, _ := NextStreak(day(2024, time.February, 29), 10, today)
	assert.Equal(t, 11, streak)
}

func TestNextStreak_UsesCallerCalendarDay(t *testing.T) {
	// 23:30 UTC on the 19th is already the 20th in UTC+5.
	plus5 := time.FixedZone("UTC+5", 5*60*60)
	today := time.Date(2024, time.May, 19, 23, 30, 0, 0, time.UTC).In(plus5)

	streak, last := NextStreak(day(2024, time.May, 19), 3, today)
	assert.Equal(t, 4, streak)
	assert.Equal(t, time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC), last)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, 1, Level(0))
	assert.Equal(t, 1, Level(999))
	assert.Equal(t, 2, Level(1000))
	assert.Equal(t, 4, Level(3500))
	assert.Equal(t, 1, Level(-5))
}

func TestNew_Validates(t *testing.T) {
	now := time.Now()

	a, err := New(" acc-1 ", "Ann", RoleStudent, now)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", a.ID)
	assert.False(t, a.IsAdmin())

	_, err = New("", "Nobody", RoleStudent, now)
	assert.True(t, shared.IsValidation(err))

	_, err = New("acc-2", "Bad", Role("root"), now)
	assert.True(t, shared.IsValidation(err))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole(" Admin "))
	assert.Equal(t, RoleStudent, ParseRole("student"))
	assert.Equal(t, RoleStudent, ParseRole(""))
}

func TestAccount_CloneIsIndependent(t *testing.T) {
	a := &Account{ID: "a", Role: RoleStudent, LastLoginDate: day(2024, time.January, 1)}
	c := a.Clone()
	*c.LastLoginDate = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2024, a.LastLoginDate.Year())
}

func TestAccount_LoginRecorded(t *testing.T) {
	a := &Account{ID: "a", LastLoginDate: day(2024, time.May, 20)}
	assert.True(t, a.LoginRecorded(time.Date(2024, time.May, 20, 18, 0, 0, 0, time.UTC)))
	assert.False(t, a.LoginRecorded(time.Date(2024, time.May, 21, 1, 0, 0, 0, time.UTC)))
	assert.False(t, (&Account{ID: "b"}).LoginRecorded(time.Now()))
}
