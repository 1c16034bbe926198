package availability

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTimezone     = "America/Los_Angeles"
	DefaultSlotDuration = 30 * time.Minute
)

var (
	DefaultDayStart = Clock{Hour: 10}
	DefaultDayEnd   = Clock{Hour: 18}
)

// Clock is a local time of day.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(raw string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return Clock{}, invalid("time", "expected HH:MM, got %q", raw)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) Before(other Clock) bool {
	return c.minutes() < other.minutes()
}

// Date is a calendar day with no timezone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, invalid("date", "is required")
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return Date{}, invalid("date", "expected YYYY-MM-DD, got %q", raw)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) at(c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// WorkingHoursProfile is a teacher's bookable window configuration.
type WorkingHoursProfile struct {
	Timezone         string
	DayStart         Clock
	DayEnd           Clock
	SlotDuration     time.Duration
	WeekendsExcluded bool
}

func DefaultProfile() WorkingHoursProfile {
	return WorkingHoursProfile{
		Timezone:         DefaultTimezone,
		DayStart:         DefaultDayStart,
		DayEnd:           DefaultDayEnd,
		SlotDuration:     DefaultSlotDuration,
		WeekendsExcluded: true,
	}
}

// WithDefaults fills an empty timezone and a zero slot duration. Explicit hours are kept.
func (p WorkingHoursProfile) WithDefaults() WorkingHoursProfile {
	if strings.TrimSpace(p.Timezone) == "" {
		p.Timezone = DefaultTimezone
	}
	if p.SlotDuration == 0 {
		p.SlotDuration = DefaultSlotDuration
	}
	return p
}

func (p WorkingHoursProfile) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, invalid("timezone", "unknown timezone %q", p.Timezone)
	}
	return loc, nil
}

// Malformed reports whether the profile describes no bookable hours at all.
func (p WorkingHoursProfile) Malformed() bool {
	return !p.DayStart.Before(p.DayEnd) || p.SlotDuration <= 0
}

// WindowFor returns the absolute working window for day. ok is false on an excluded
// weekend or when the hours are malformed.
func (p WorkingHoursProfile) WindowFor(day Date) (window Interval, ok bool, err error) {
	loc, err := p.Location()
	if err != nil {
		return Interval{}, false, err
	}
	if !p.DayStart.Before(p.DayEnd) {
		return Interval{}, false, nil
	}
	if p.WeekendsExcluded && isWeekend(day.at(Clock{}, loc).Weekday()) {
		return Interval{}, false, nil
	}
	return Interval{Start: day.at(p.DayStart, loc), End: day.at(p.DayEnd, loc)}, true, nil
}

// IsClosed reports whether day falls on an excluded weekend in the profile's timezone.
func (p WorkingHoursProfile) IsClosed(day Date) bool {
	if !p.WeekendsExcluded {
		return false
	}
	loc, err := p.Location()
	if err != nil {
		return false
	}
	return isWeekend(day.at(Clock{}, loc).Weekday())
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
