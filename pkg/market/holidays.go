package market

import "time"

// Holidays returns the US equity market holidays observed in year, as midnight dates in loc.
func Holidays(year int, loc *time.Location) []time.Time {
	d := func(m time.Month, day int) time.Time { return time.Date(year, m, day, 0, 0, 0, 0, loc) }

	// New Year on a Saturday is observed the following Monday.
	newYear := d(time.January, 1)
	switch newYear.Weekday() {
	case time.Saturday:
		newYear = d(time.January, 3)
	case time.Sunday:
		newYear = d(time.January, 2)
	}

	return []time.Time{
		newYear,
		nthWeekday(year, time.January, time.Monday, 3, loc),
		nthWeekday(year, time.February, time.Monday, 3, loc),
		easter(year, loc).AddDate(0, 0, -2),
		lastWeekday(year, time.May, time.Monday, loc),
		observed(d(time.June, 19)),
		observed(d(time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1, loc),
		nthWeekday(year, time.November, time.Thursday, 4, loc),
		observed(d(time.December, 25)),
	}
}

// observed shifts a Saturday holiday to Friday and a Sunday holiday to Monday.
func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easter is the anonymous Gregorian computus.
func easter(year int, loc *time.Location) time.Time {
	a := year % 19
	b, c := year/100, year%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
