package model

import (
	"strings"
	"time"
)

// Teacher is the slice of a teacher record the periodic jobs need.
type Teacher struct {
	ID          string
	Email       string
	FirstName   string
	Slug        string
	CalendarID  string
	OfficeEmail string
	Timezone    string
}

// Location falls back to fallback when the stored timezone is empty or unknown.
func (t Teacher) Location(fallback *time.Location) *time.Location {
	if tz := strings.TrimSpace(t.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return fallback
}

type Student struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// Delivery identifies one reminder sent for a calendar event.
type Delivery struct {
	EventID   string
	TeacherID string
	StudentID string
	StartsAt  time.Time
}
