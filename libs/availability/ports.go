package availability

import (
	"context"
	"time"
)

type TeacherRef string

type EventRef string

// CalendarEvent is an event read from a teacher's external calendar.
type CalendarEvent struct {
	Ref         EventRef
	Summary     string
	Description string
	StudentID   string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

func (e CalendarEvent) Interval() Interval {
	return Interval{Start: e.Start, End: e.End}
}

type EventMetadata struct {
	Summary     string
	Description string
	StudentID   string
	Attendees   []string
}

// Message is an outgoing email. SenderUserID names the account to send as, when the
// transport supports it.
type Message struct {
	Kind         string
	To           string
	Cc           []string
	Subject      string
	Body         string
	SenderUserID string
	TeacherID    string
}

// BusyIntervalSource returns a teacher's busy intervals within window, merged across
// calendars with all-day events excluded.
type BusyIntervalSource interface {
	BusyIntervals(ctx context.Context, teacher TeacherRef, window Interval) ([]Interval, error)
}

type EventWriter interface {
	CreateEvent(ctx context.Context, teacher TeacherRef, slot Interval, meta EventMetadata) (EventRef, error)
	DeleteEvent(ctx context.Context, teacher TeacherRef, ref EventRef) error
}

// Notifier delivers email on a best-effort basis.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// ProviderError is a calendar read failure with a message safe to show callers.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderUnavailable
}
