package availability

import "time"

const (
	DefaultReminderLookahead = 48 * time.Hour
	DefaultReminderTolerance = 30 * time.Second

	reminderQuerySlack = time.Minute
)

// ReminderWindow selects events starting Lookahead from now, give or take Tolerance.
type ReminderWindow struct {
	Lookahead time.Duration
	Tolerance time.Duration
}

func DefaultReminderWindow() ReminderWindow {
	return ReminderWindow{Lookahead: DefaultReminderLookahead, Tolerance: DefaultReminderTolerance}
}

func (w ReminderWindow) InWindow(eventStart, now time.Time) bool {
	diff := eventStart.Sub(now.Add(w.Lookahead))
	if diff < 0 {
		diff = -diff
	}
	return diff <= w.Tolerance
}

// Range is the half-open query range covering every start time InWindow accepts.
func (w ReminderWindow) Range(now time.Time) Interval {
	target := now.Add(w.Lookahead)
	return Interval{Start: target.Add(-w.Tolerance), End: target.Add(w.Tolerance + time.Nanosecond)}
}

// QueryRange widens Range by a minute each side on whole seconds, for providers that
// compare start times at second precision. Callers still filter with Matches.
func (w ReminderWindow) QueryRange(now time.Time) Interval {
	r := w.Range(now)
	start := r.Start.Add(-reminderQuerySlack).Truncate(time.Second)
	end := r.End.Add(reminderQuerySlack)
	if whole := end.Truncate(time.Second); !whole.Equal(end) {
		end = whole.Add(time.Second)
	}
	return Interval{Start: start, End: end}
}

// Matches requires a timed event; all-day events never match.
func (w ReminderWindow) Matches(ev CalendarEvent, now time.Time) bool {
	if ev.AllDay {
		return false
	}
	return w.InWindow(ev.Start, now)
}

func InWindow(eventStart, now time.Time) bool {
	return DefaultReminderWindow().InWindow(eventStart, now)
}
