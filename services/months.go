package services

import "time"

// MonthsBetween counts whole calendar months elapsed from start to now. A
// month is complete on the anniversary day, clamped to the last day of
// shorter months, so Jan 31 -> Feb 29 counts as one month. Dates are read in
// start's location. Returns 0 when now is before start.
func MonthsBetween(start, now time.Time) int {
	now = now.In(start.Location())
	if now.Before(start) {
		return 0
	}
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if months > 0 && now.Before(AddMonthsClamped(start, months)) {
		months--
	}
	return months
}

// MonthIndex is the 1-based month a relationship is in at now.
func MonthIndex(start, now time.Time) int {
	return MonthsBetween(start, now) + 1
}

// AddMonthsClamped moves t forward n calendar months keeping the day of
// month where it exists and using the month's last day where it does not.
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// MonthStart is when month index begins for a relationship starting at start.
func MonthStart(start time.Time, index int) time.Time {
	if index < 1 {
		index = 1
	}
	return AddMonthsClamped(start, index-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
