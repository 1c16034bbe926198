package availability

import (
	"context"
	"errors"
	"time"
)

// Slot is a candidate lesson window derived from a working-hours profile.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

const ReasonWeekend = "No availability on weekends."

const defaultProviderWarning = "Calendar is unavailable right now; availability could not be computed."

// Availability is the outcome of a day's slot computation.
type Availability struct {
	Day    Date
	Window Interval
	Slots  []Slot
	// Candidates is every slot of the window, available or not.
	Candidates []Slot
	// Closed is set when the day is an excluded weekend; Reason explains it.
	Closed bool
	Reason string
	// Warning is set when busy intervals could not be read. Slots is empty in that case.
	Warning string
}

// Grid returns every candidate slot in day's working window, tagged available when no
// busy interval overlaps it.
func Grid(profile WorkingHoursProfile, day Date, busy []Interval) ([]Slot, error) {
	window, ok, err := profile.WindowFor(day)
	if err != nil {
		return nil, err
	}
	if !ok || profile.SlotDuration <= 0 {
		return []Slot{}, nil
	}
	return walk(window, profile.SlotDuration, busy), nil
}

// Generate returns the available slots for day in chronological order.
func Generate(profile WorkingHoursProfile, day Date, busy []Interval) ([]Slot, error) {
	grid, err := Grid(profile, day, busy)
	if err != nil {
		return nil, err
	}
	return availableOnly(grid), nil
}

func walk(window Interval, duration time.Duration, busy []Interval) []Slot {
	slots := []Slot{}
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(duration) {
		candidate := Interval{Start: t, End: t.Add(duration)}
		slots = append(slots, Slot{Start: candidate.Start, End: candidate.End, Available: !overlapsAny(candidate, busy)})
	}
	return slots
}

func availableOnly(grid []Slot) []Slot {
	out := make([]Slot, 0, len(grid))
	for _, s := range grid {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// DayAvailability reads the teacher's busy intervals for day and derives the open slots.
// A failing source degrades to an empty result with a warning; only validation errors
// are returned.
func DayAvailability(ctx context.Context, src BusyIntervalSource, teacher TeacherRef, profile WorkingHoursProfile, day Date) (Availability, error) {
	out := Availability{Day: day, Slots: []Slot{}, Candidates: []Slot{}}

	window, ok, err := profile.WindowFor(day)
	if err != nil {
		return out, err
	}
	if !ok {
		if profile.IsClosed(day) {
			out.Closed = true
			out.Reason = ReasonWeekend
		}
		return out, nil
	}
	out.Window = window
	if profile.SlotDuration <= 0 {
		return out, nil
	}

	busy, err := src.BusyIntervals(ctx, teacher, window)
	if err != nil {
		out.Warning = providerWarning(err)
		return out, nil
	}
	out.Candidates = walk(window, profile.SlotDuration, busy)
	out.Slots = availableOnly(out.Candidates)
	return out, nil
}

func providerWarning(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return defaultProviderWarning
}
