package report

import "time"

// Period is an inclusive time window. Build it with NewPeriod so both ends are
// normalized to whole days.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod truncates start to midnight and extends end to the last
// nanosecond of its calendar day in loc.
func NewPeriod(start, end time.Time, loc *time.Location) Period {
	return Period{Start: StartOfDay(start, loc), End: EndOfDay(end, loc)}
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

// Contains reports whether t falls inside the window, both ends included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}
