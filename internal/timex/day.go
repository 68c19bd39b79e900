package timex

import "time"

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar date as seen in t's own location and
// returns midnight UTC of that date. Two instants on the same local day
// map to the same value.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a Day value.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// DaysBetween returns the number of calendar days from a to b (b-a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
