package lessons

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

type fakeCalendar struct {
	busy      []availability.Interval
	busyErr   error
	created   []availability.EventMetadata
	createErr error
	event     availability.CalendarEvent
	eventErr  error
	deleted   []availability.EventRef
}

func (f *fakeCalendar) BusyIntervals(ctx context.Context, teacher availability.TeacherRef, window availability.Interval) ([]availability.Interval, error) {
	return f.busy, f.busyErr
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, teacher availability.TeacherRef, slot availability.Interval, meta availability.EventMetadata) (availability.EventRef, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, meta)
	return "evt-1", nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, teacher availability.TeacherRef, ref availability.EventRef) error {
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeCalendar) Event(ctx context.Context, teacher availability.TeacherRef, ref availability.EventRef) (availability.CalendarEvent, error) {
	return f.event, f.eventErr
}

type recordingNotifier struct {
	sent []availability.Message
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg availability.Message) error {
	n.sent = append(n.sent, msg)
	return n.err
}

type recordingOutbox struct {
	events []outbox.Event
}

func (o *recordingOutbox) Insert(ctx context.Context, exec outbox.Execer, evt outbox.Event) error {
	o.events = append(o.events, evt)
	return nil
}

var (
	now     = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	teacher = model.Teacher{ID: "t1", Email: "ada@example.com", FirstName: "Ada", OfficeEmail: "office@example.com", Timezone: "America/Los_Angeles"}
	student = model.Student{ID: "s1", Email: "sam@example.com", FirstName: "Sam", LastName: "Student"}
)

func newService(cal *fakeCalendar, n *recordingNotifier, o *recordingOutbox) *Service {
	svc := NewService(cal, n, o, availability.DefaultBookingPolicy(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc
}

func slotAt(start time.Time) availability.Interval {
	return availability.Interval{Start: start, End: start.Add(30 * time.Minute)}
}

func TestBook_CreatesEventAndNotifies(t *testing.T) {
	cal, n, o := &fakeCalendar{}, &recordingNotifier{}, &recordingOutbox{}
	svc := newService(cal, n, o)

	ref, err := svc.Book(context.Background(), BookRequest{
		Teacher:      teacher,
		Student:      student,
		StudentName:  "Sam Student",
		StudentEmail: "sam@example.com",
		Slot:         slotAt(now.Add(48 * time.Hour)),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "evt-1" {
		t.Fatalf("expected evt-1, got %s", ref)
	}
	meta := cal.created[0]
	if meta.Summary != "Sam Student" || meta.StudentID != "s1" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Description != "Music lesson with Sam Student (sam@example.com, Student ID: s1)" {
		t.Fatalf("unexpected description %q", meta.Description)
	}
	if len(n.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(n.sent))
	}
	msg := n.sent[0]
	if msg.To != "office@example.com" || len(msg.Cc) != 1 || msg.Cc[0] != "ada@example.com" {
		t.Fatalf("unexpected recipients %s %v", msg.To, msg.Cc)
	}
	if msg.Subject != "New Lesson Booked: Sam Student" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "Scheduled Time: Wednesday, March 4 at 4:00 AM to 4:30 AM") {
		t.Fatalf("expected local time in body, got %q", msg.Body)
	}
	if len(o.events) != 1 || o.events[0].EventType != outbox.TopicLessonBooked {
		t.Fatalf("expected lesson.booked event, got %+v", o.events)
	}
}

func TestBook_LeadTime(t *testing.T) {
	cal := &fakeCalendar{}
	svc := newService(cal, &recordingNotifier{}, &recordingOutbox{})
	_, err := svc.Book(context.Background(), BookRequest{Teacher: teacher, Student: student, Slot: slotAt(now.Add(23 * time.Hour))})
	if !errors.Is(err, availability.ErrTooLate) {
		t.Fatalf("expected ErrTooLate, got %v", err)
	}
	if len(cal.created) != 0 {
		t.Fatalf("expected no event to be created")
	}

	if _, err := svc.Book(context.Background(), BookRequest{Teacher: teacher, Student: student, Slot: slotAt(now.Add(24 * time.Hour))}); err != nil {
		t.Fatalf("expected exactly 24h to be accepted, got %v", err)
	}
}

func TestBook_Conflict(t *testing.T) {
	start := now.Add(48 * time.Hour)
	cal := &fakeCalendar{busy: []availability.Interval{{Start: start.Add(15 * time.Minute), End: start.Add(time.Hour)}}}
	svc := newService(cal, &recordingNotifier{}, &recordingOutbox{})
	_, err := svc.Book(context.Background(), BookRequest{Teacher: teacher, Student: student, Slot: slotAt(start)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBook_CalendarReadFailureBlocksBooking(t *testing.T) {
	readErr := &availability.ProviderError{Message: "calendar unavailable", Err: errors.New("read calendar lessons: 500")}
	cal := &fakeCalendar{busyErr: readErr}
	n := &recordingNotifier{}
	svc := newService(cal, n, &recordingOutbox{})
	_, err := svc.Book(context.Background(), BookRequest{Teacher: teacher, Student: student, Slot: slotAt(now.Add(48 * time.Hour))})
	if !errors.Is(err, availability.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if len(cal.created) != 0 || len(n.sent) != 0 {
		t.Fatalf("expected no event and no email when the busy read fails")
	}
}

func TestBook_TouchingBusyIsNotConflict(t *testing.T) {
	start := now.Add(48 * time.Hour)
	cal := &fakeCalendar{busy: []availability.Interval{{Start: start.Add(-time.Hour), End: start}}}
	svc := newService(cal, &recordingNotifier{}, &recordingOutbox{})
	if _, err := svc.Book(context.Background(), BookRequest{Teacher: teacher, Student: student, Slot: slotAt(start)}); err != nil {
		t.Fatalf("expected touching interval to be allowed, got %v", err)
	}
}

func TestBook_NotificationFailureDoesNotFail(t *testing.T) {
	n := &recordingNotifier{err: availability.ErrNotificationFailed}
	svc := newService(&fakeCalendar{}, n, &recordingOutbox{})
	if _, err := svc.Book(context.Background(), BookRequest{Teacher: teacher, Student: student, Slot: slotAt(now.Add(48 * time.Hour))}); err != nil {
		t.Fatalf("expected booking to succeed despite notification failure, got %v", err)
	}
}

func TestBook_WriteFailure(t *testing.T) {
	cal := &fakeCalendar{createErr: availability.ErrWriteFailed}
	n := &recordingNotifier{}
	svc := newService(cal, n, &recordingOutbox{})
	_, err := svc.Book(context.Background(), BookRequest{Teacher: teacher, Student: student, Slot: slotAt(now.Add(48 * time.Hour))})
	if !errors.Is(err, availability.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("expected no email when the event was not created")
	}
}

func TestBook_InvalidSlot(t *testing.T) {
	svc := newService(&fakeCalendar{}, &recordingNotifier{}, &recordingOutbox{})
	start := now.Add(48 * time.Hour)
	_, err := svc.Book(context.Background(), BookRequest{Slot: availability.Interval{Start: start, End: start}})
	if !errors.Is(err, availability.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	start := now.Add(48 * time.Hour)
	cal := &fakeCalendar{event: availability.CalendarEvent{Ref: "evt-1", StudentID: "s1", Start: start, End: start.Add(30 * time.Minute)}}
	n, o := &recordingNotifier{}, &recordingOutbox{}
	svc := newService(cal, n, o)

	if _, err := svc.Cancel(context.Background(), CancelRequest{Teacher: teacher, Student: student, Event: "evt-1", RequesterID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cal.deleted) != 1 {
		t.Fatalf("expected event to be deleted")
	}
	if n.sent[0].Subject != "Lesson Cancelled: Sam Student" {
		t.Fatalf("unexpected subject %q", n.sent[0].Subject)
	}
	if o.events[0].EventType != outbox.TopicLessonCancelled {
		t.Fatalf("expected lesson.cancelled event")
	}
}

func TestCancel_UnauthorizedBeforeTiming(t *testing.T) {
	start := now.Add(time.Hour)
	cal := &fakeCalendar{event: availability.CalendarEvent{StudentID: "s1", Start: start, End: start.Add(30 * time.Minute)}}
	svc := newService(cal, &recordingNotifier{}, &recordingOutbox{})

	_, err := svc.Cancel(context.Background(), CancelRequest{Teacher: teacher, Event: "evt-1", RequesterID: "s2"})
	if !errors.Is(err, availability.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err = svc.Cancel(context.Background(), CancelRequest{Teacher: teacher, Event: "evt-1", RequesterID: "s1"})
	if !errors.Is(err, availability.ErrTooLate) {
		t.Fatalf("expected ErrTooLate, got %v", err)
	}
	if len(cal.deleted) != 0 {
		t.Fatalf("expected nothing deleted")
	}
}

func TestCancel_MissingStartAndNotFound(t *testing.T) {
	cal := &fakeCalendar{event: availability.CalendarEvent{StudentID: "s1"}}
	svc := newService(cal, &recordingNotifier{}, &recordingOutbox{})
	if _, err := svc.Cancel(context.Background(), CancelRequest{Teacher: teacher, Event: "evt-1", RequesterID: "s1"}); !errors.Is(err, availability.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	cal = &fakeCalendar{eventErr: calendar.ErrEventNotFound}
	svc = newService(cal, &recordingNotifier{}, &recordingOutbox{})
	if _, err := svc.Cancel(context.Background(), CancelRequest{Teacher: teacher, Event: "evt-1", RequesterID: "s1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventOwner(t *testing.T) {
	cases := []struct {
		ev   availability.CalendarEvent
		want string
	}{
		{availability.CalendarEvent{StudentID: "s1", Description: "Student ID: s2"}, "s1"},
		{availability.CalendarEvent{Description: "Music lesson with Sam (sam@example.com, Student ID: 9b2f-11)"}, "9b2f-11"},
		{availability.CalendarEvent{Description: "Dentist"}, ""},
	}
	for _, tc := range cases {
		if got := EventOwner(tc.ev); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}
