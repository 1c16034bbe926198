package model

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
)

type Teacher struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	Slug             string
	WorkingStart     string
	WorkingEnd       string
	SlotMinutes      int
	Timezone         string
	WeekendsExcluded bool
	CalendarID       string
	OfficeEmail      string
	Plan             string
	GoogleConnected  bool
}

// Profile derives the working-hours profile, falling back to the defaults for any
// field the teacher has not set.
func (t Teacher) Profile() (availability.WorkingHoursProfile, error) {
	p := availability.DefaultProfile()
	p.WeekendsExcluded = t.WeekendsExcluded
	if tz := strings.TrimSpace(t.Timezone); tz != "" {
		p.Timezone = tz
	}
	if t.SlotMinutes > 0 {
		p.SlotDuration = time.Duration(t.SlotMinutes) * time.Minute
	}
	if t.WorkingStart != "" {
		start, err := availability.ParseClock(t.WorkingStart)
		if err != nil {
			return p, err
		}
		p.DayStart = start
	}
	if t.WorkingEnd != "" {
		end, err := availability.ParseClock(t.WorkingEnd)
		if err != nil {
			return p, err
		}
		p.DayEnd = end
	}
	return p, nil
}

func (t Teacher) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

type Student struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	TeacherSlug string
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}
