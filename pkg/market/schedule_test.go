package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func dates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format(time.DateOnly)
	}
	return out
}

func TestHolidays2025(t *testing.T) {
	got := dates(Holidays(2025, newYork(t)))
	assert.Equal(t, []string{
		"2025-01-01", "2025-01-20", "2025-02-17", "2025-04-18", "2025-05-26",
		"2025-06-19", "2025-07-04", "2025-09-01", "2025-11-27", "2025-12-25",
	}, got)
}

func TestHolidayWeekendShifts(t *testing.T) {
	loc := newYork(t)
	// 2022-01-01 was a Saturday, 2022-12-25 a Sunday.
	got := dates(Holidays(2022, loc))
	assert.Contains(t, got, "2022-01-03")
	assert.Contains(t, got, "2022-12-26")
	// 2026-07-04 is a Saturday.
	assert.Contains(t, dates(Holidays(2026, loc)), "2026-07-03")
}

func TestStatus(t *testing.T) {
	s, err := NewSchedule(ModeRegular, "America/New_York")
	require.NoError(t, err)
	loc := s.Location()
	day := func(h, m int) time.Time { return time.Date(2025, 3, 12, h, m, 0, 0, loc) }

	assert.Equal(t, StatusClosed, s.Status(day(3, 59)))
	assert.Equal(t, StatusPremarket, s.Status(day(4, 0)))
	assert.Equal(t, StatusOpen, s.Status(day(9, 30)))
	assert.Equal(t, StatusAfterhours, s.Status(day(16, 0)))
	assert.Equal(t, StatusClosed, s.Status(day(20, 0)))
	assert.Equal(t, StatusClosed, s.Status(time.Date(2025, 7, 4, 11, 0, 0, 0, loc)))
	assert.Equal(t, StatusClosed, s.Status(time.Date(2025, 3, 15, 11, 0, 0, 0, loc)))
}

func TestIsOpenByMode(t *testing.T) {
	loc := newYork(t)
	pre := time.Date(2025, 3, 12, 8, 0, 0, 0, loc)
	saturday := time.Date(2025, 3, 15, 12, 0, 0, 0, loc)

	regular, _ := NewSchedule(ModeRegular, "")
	extended, _ := NewSchedule(ModeExtended, "")
	always, _ := NewSchedule(ModeAlways, "")

	assert.False(t, regular.IsOpen(pre))
	assert.True(t, extended.IsOpen(pre))
	assert.True(t, always.IsOpen(saturday))
	assert.False(t, extended.IsOpen(saturday))

	_, err := NewSchedule("weekends", "")
	assert.Error(t, err)
}

func TestNextOpen(t *testing.T) {
	s, err := NewSchedule(ModeRegular, "")
	require.NoError(t, err)
	loc := s.Location()

	friday := time.Date(2025, 3, 14, 17, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 3, 17, 9, 30, 0, 0, loc), s.NextOpen(friday))

	early := time.Date(2025, 3, 14, 7, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 30, 0, 0, loc), s.NextOpen(early))

	// Thursday before Good Friday 2025.
	thursday := time.Date(2025, 4, 17, 18, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 4, 21, 9, 30, 0, 0, loc), s.NextOpen(thursday))

	open := time.Date(2025, 3, 14, 10, 0, 0, 0, loc)
	assert.Equal(t, open, s.NextOpen(open))
}
