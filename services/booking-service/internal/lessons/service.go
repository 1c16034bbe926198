// Package lessons books and cancels lessons on a teacher's calendar and fans out the
// follow-up email and domain events.
package lessons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

var (
	ErrConflict = errors.New("requested time overlaps an existing event")
	ErrNotFound = errors.New("lesson not found")
)

type Calendar interface {
	availability.BusyIntervalSource
	availability.EventWriter
	Event(ctx context.Context, teacher availability.TeacherRef, ref availability.EventRef) (availability.CalendarEvent, error)
}

type EventWriter interface {
	Insert(ctx context.Context, exec outbox.Execer, evt outbox.Event) error
}

type Service struct {
	calendar Calendar
	notifier availability.Notifier
	events   EventWriter
	policy   availability.BookingPolicy
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(cal Calendar, notifier availability.Notifier, events EventWriter, policy availability.BookingPolicy, logger *slog.Logger) *Service {
	return &Service{
		calendar: cal,
		notifier: notifier,
		events:   events,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

type BookRequest struct {
	Teacher      model.Teacher
	Student      model.Student
	StudentName  string
	StudentEmail string
	Slot         availability.Interval
}

// Book creates the calendar event for a lesson. The confirmation email and the
// lesson.booked.v1 event are best effort once the event exists.
func (s *Service) Book(ctx context.Context, req BookRequest) (availability.EventRef, error) {
	if !req.Slot.Valid() {
		return "", &availability.ValidationError{Field: "end_time", Message: "must be after start_time"}
	}
	now := s.now()
	if err := s.policy.CheckCreate(now, req.Slot.Start); err != nil {
		return "", err
	}

	teacher := availability.TeacherRef(req.Teacher.ID)
	busy, err := s.calendar.BusyIntervals(ctx, teacher, req.Slot)
	if err != nil {
		return "", err
	}
	for _, b := range busy {
		if availability.Overlaps(b, req.Slot) {
			return "", ErrConflict
		}
	}

	ref, err := s.calendar.CreateEvent(ctx, teacher, req.Slot, availability.EventMetadata{
		Summary:     req.StudentName,
		Description: fmt.Sprintf("Music lesson with %s (%s, Student ID: %s)", req.StudentName, req.StudentEmail, req.Student.ID),
		StudentID:   req.Student.ID,
		Attendees:   []string{req.StudentEmail},
	})
	if err != nil {
		return "", err
	}

	ctx = context.WithoutCancel(ctx)
	s.notify(ctx, bookingConfirmation(req.Teacher, req.Student, req.Slot))
	s.publish(ctx, outbox.TopicLessonBooked, outbox.LessonEvent{
		EventID:    string(ref),
		TeacherID:  req.Teacher.ID,
		StudentID:  req.Student.ID,
		StartTime:  req.Slot.Start.UTC(),
		EndTime:    req.Slot.End.UTC(),
		OccurredAt: now.UTC(),
	})
	return ref, nil
}

type CancelRequest struct {
	Teacher     model.Teacher
	Student     model.Student
	Event       availability.EventRef
	RequesterID string
}

// Cancel deletes a lesson owned by the requester. Ownership is checked before timing.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (availability.CalendarEvent, error) {
	teacher := availability.TeacherRef(req.Teacher.ID)
	ev, err := s.calendar.Event(ctx, teacher, req.Event)
	if err != nil {
		if errors.Is(err, calendar.ErrEventNotFound) {
			return availability.CalendarEvent{}, ErrNotFound
		}
		return availability.CalendarEvent{}, err
	}

	owner := EventOwner(ev)
	if req.RequesterID == "" || req.RequesterID != owner {
		return ev, availability.ErrUnauthorized
	}
	if ev.Start.IsZero() {
		return ev, &availability.ValidationError{Field: "start", Message: "event has no start time"}
	}
	now := s.now()
	if err := s.policy.CanCancel(now, ev.Start, req.RequesterID, owner); err != nil {
		return ev, err
	}

	if err := s.calendar.DeleteEvent(ctx, teacher, req.Event); err != nil {
		return ev, err
	}

	ctx = context.WithoutCancel(ctx)
	s.notify(ctx, cancellationNotice(req.Teacher, req.Student, ev.Interval()))
	s.publish(ctx, outbox.TopicLessonCancelled, outbox.LessonEvent{
		EventID:    string(req.Event),
		TeacherID:  req.Teacher.ID,
		StudentID:  owner,
		StartTime:  ev.Start.UTC(),
		EndTime:    ev.End.UTC(),
		OccurredAt: now.UTC(),
	})
	return ev, nil
}

var studentIDPattern = regexp.MustCompile(`Student ID:\s*([^\s,)]+)`)

// EventOwner returns the student an event was booked for: the private studentId
// property, or the id embedded in the description by older bookings.
func EventOwner(ev availability.CalendarEvent) string {
	if id := strings.TrimSpace(ev.StudentID); id != "" {
		return id
	}
	if m := studentIDPattern.FindStringSubmatch(ev.Description); m != nil {
		return m[1]
	}
	return ""
}

func (s *Service) notify(ctx context.Context, msg availability.Message) {
	if s.notifier == nil {
		return
	}
	if strings.TrimSpace(msg.To) == "" {
		s.logger.Warn("notification skipped (no recipient)", "kind", msg.Kind, "teacher_id", msg.TeacherID)
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "teacher_id", msg.TeacherID, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, topic string, payload outbox.LessonEvent) {
	if s.events == nil {
		return
	}
	evt, err := outbox.NewEvent("lesson", payload.EventID, topic, payload)
	if err == nil {
		err = s.events.Insert(ctx, nil, evt)
	}
	if err != nil {
		s.logger.Error("lesson event not recorded", "topic", topic, "event_id", payload.EventID, "err", err)
	}
}
