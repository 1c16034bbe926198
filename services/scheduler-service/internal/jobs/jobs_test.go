package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/services/scheduler-service/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStore struct {
	teachers  []model.Teacher
	students  map[string][]model.Student
	delivered map[string]bool
}

func (f *fakeStore) ReminderTeachers(ctx context.Context) ([]model.Teacher, error) {
	return f.teachers, nil
}

func (f *fakeStore) DigestTeachers(ctx context.Context) ([]model.Teacher, error) {
	return f.teachers, nil
}

func (f *fakeStore) StudentsOf(ctx context.Context, slug string) ([]model.Student, error) {
	return f.students[slug], nil
}

func (f *fakeStore) DeliverOnce(ctx context.Context, d model.Delivery, send func(tx pgx.Tx) error) (bool, error) {
	if f.delivered == nil {
		f.delivered = map[string]bool{}
	}
	if f.delivered[d.EventID] {
		return false, nil
	}
	if err := send(nil); err != nil {
		return false, err
	}
	f.delivered[d.EventID] = true
	return true, nil
}

type fakeEvents struct {
	byTeacher map[string][]availability.CalendarEvent
	failFor   string
	windows   []availability.Interval
}

func (f *fakeEvents) Events(ctx context.Context, teacher model.Teacher, window availability.Interval) ([]availability.CalendarEvent, error) {
	f.windows = append(f.windows, window)
	if teacher.ID == f.failFor {
		return nil, errors.New("calendar unavailable")
	}
	return f.byTeacher[teacher.ID], nil
}

type fakeNotifier struct {
	sent []availability.Message
}

func (f *fakeNotifier) SendWith(ctx context.Context, exec outbox.Execer, msg availability.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeNotifier) Send(ctx context.Context, msg availability.Message) error {
	return f.SendWith(ctx, nil, msg)
}

var (
	la, _    = time.LoadLocation("America/Los_Angeles")
	scanNow  = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	ada      = model.Teacher{ID: "t1", FirstName: "Ada", Slug: "ada-1234", Timezone: "America/Los_Angeles", OfficeEmail: "office@example.com"}
	students = map[string][]model.Student{"ada-1234": {
		{ID: "s1", FirstName: "Sam", LastName: "Lee", Email: "sam@example.com"},
		{ID: "s2", FirstName: "Pat", LastName: "Kim", Email: "pat@example.com"},
	}}
)

func TestReminders_Run(t *testing.T) {
	lessonStart := scanNow.Add(48 * time.Hour)
	events := &fakeEvents{
		byTeacher: map[string][]availability.CalendarEvent{"t1": {
			{Ref: "e1", Summary: "Pat Kim", StudentID: "s2", Start: lessonStart, End: lessonStart.Add(30 * time.Minute)},
			{Ref: "e2", Summary: "Sam Lee", Start: lessonStart.Add(10 * time.Second), End: lessonStart.Add(30 * time.Minute)},
			{Ref: "e3", Summary: "Sam Lee", Start: lessonStart.Add(5 * time.Minute), End: lessonStart.Add(35 * time.Minute)},
			{Ref: "e4", Summary: "Holiday", Start: lessonStart, End: lessonStart.Add(24 * time.Hour), AllDay: true},
		}},
		failFor: "t2",
	}
	store := &fakeStore{teachers: []model.Teacher{{ID: "t2"}, ada}, students: students}
	notifier := &fakeNotifier{}
	r := NewReminders(store, events, notifier, availability.DefaultReminderWindow(), la, discard)
	r.now = func() time.Time { return scanNow }

	sent, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 reminders, got %d", sent)
	}
	if notifier.sent[0].To != "pat@example.com" || notifier.sent[1].To != "sam@example.com" {
		t.Fatalf("unexpected recipients %+v", notifier.sent)
	}
	msg := notifier.sent[0]
	if msg.Subject != "Reminder: Lesson in 2 Days" || msg.SenderUserID != "t1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Body, "Hi Pat,") || !strings.Contains(msg.Body, "lesson with Ada on Mar 4, 2026, 10:00 AM") {
		t.Fatalf("unexpected body %q", msg.Body)
	}
	want := availability.DefaultReminderWindow().QueryRange(scanNow)
	if !events.windows[1].Start.Equal(want.Start) || !events.windows[1].End.Equal(want.End) {
		t.Fatalf("unexpected query window %+v", events.windows[1])
	}

	// A second scan in the same minute finds the deliveries already recorded.
	sent, _ = r.Run(context.Background())
	if sent != 0 || len(notifier.sent) != 2 {
		t.Fatalf("expected no duplicate reminders, got %d", sent)
	}
}

// secondPrecisionEvents drops sub-second precision from the window and keeps events
// starting in [timeMin, timeMax), as the Calendar API does.
type secondPrecisionEvents struct {
	events  []availability.CalendarEvent
	windows []availability.Interval
}

func (s *secondPrecisionEvents) Events(ctx context.Context, teacher model.Teacher, window availability.Interval) ([]availability.CalendarEvent, error) {
	s.windows = append(s.windows, window)
	lo, hi := window.Start.Truncate(time.Second), window.End.Truncate(time.Second)
	var out []availability.CalendarEvent
	for _, ev := range s.events {
		if !ev.Start.Before(lo) && ev.Start.Before(hi) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestReminders_LessonOnTheMinuteWithFractionalScanTime(t *testing.T) {
	scan := time.Date(2024, 6, 3, 11, 59, 30, 250_000_000, time.UTC)
	lesson := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	events := &secondPrecisionEvents{events: []availability.CalendarEvent{
		{Ref: "e1", Summary: "Sam Lee", StudentID: "s1", Start: lesson, End: lesson.Add(30 * time.Minute)},
		{Ref: "e2", Summary: "Pat Kim", StudentID: "s2", Start: lesson.Add(time.Minute), End: lesson.Add(90 * time.Second)},
	}}
	store := &fakeStore{teachers: []model.Teacher{ada}, students: students}
	notifier := &fakeNotifier{}
	r := NewReminders(store, events, notifier, availability.DefaultReminderWindow(), la, discard)
	r.now = func() time.Time { return scan }

	sent, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent != 1 || len(notifier.sent) != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}
	if notifier.sent[0].To != "sam@example.com" {
		t.Fatalf("expected reminder for the on-the-minute lesson, got %+v", notifier.sent[0])
	}
	if q := events.windows[0]; !q.End.After(lesson) {
		t.Fatalf("expected query window to reach past %s, got %+v", lesson, q)
	}
}

func TestMatchStudent(t *testing.T) {
	list := students["ada-1234"]
	cases := []struct {
		name string
		ev   availability.CalendarEvent
		want string
	}{
		{"private id", availability.CalendarEvent{StudentID: "s1", Summary: "Pat Kim"}, "s1"},
		{"first word", availability.CalendarEvent{Summary: "Pat Kim"}, "s2"},
		{"last name", availability.CalendarEvent{Summary: "Lee lesson"}, "s1"},
		{"unknown id falls back", availability.CalendarEvent{StudentID: "s9", Summary: "Sam"}, "s1"},
		{"no match", availability.CalendarEvent{Summary: "Dentist"}, ""},
		{"empty", availability.CalendarEvent{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := MatchStudent(tc.ev, list)
			if tc.want == "" {
				if ok {
					t.Fatalf("expected no match, got %s", got.ID)
				}
				return
			}
			if !ok || got.ID != tc.want {
				t.Fatalf("expected %s, got %s (ok=%v)", tc.want, got.ID, ok)
			}
		})
	}
}

func at(day, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, la)
}

func TestFormatSchedule(t *testing.T) {
	events := []availability.CalendarEvent{
		{Start: at(3, 10, 0), End: at(3, 10, 30)},
		{Start: at(3, 10, 30), End: at(3, 11, 0)},
		{Start: at(3, 14, 0), End: at(3, 15, 0)},
		{Start: at(4, 0, 0), End: at(5, 0, 0), AllDay: true},
		{Start: at(5, 11, 30), End: at(5, 12, 30)},
	}
	got := FormatSchedule(events, la)
	want := "Tuesday: 10:00-11:00 AM, 2:00-3:00 PM\nThursday: 11:30-12:30 PM"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := FormatSchedule(nil, la); got != "No upcoming events." {
		t.Fatalf("expected empty schedule line, got %q", got)
	}
}

func TestDigest_Run(t *testing.T) {
	events := &fakeEvents{byTeacher: map[string][]availability.CalendarEvent{"t1": {
		{Start: at(3, 10, 0), End: at(3, 10, 30)},
	}}}
	noName := model.Teacher{ID: "t3", Email: "zed@example.com", OfficeEmail: "zed-office@example.com"}
	notifier := &fakeNotifier{}
	d := NewDigest(&fakeStore{teachers: []model.Teacher{ada, noName}}, events, notifier, la, discard)
	d.now = func() time.Time { return time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC) }

	sent, err := d.Run(context.Background())
	if err != nil || sent != 2 {
		t.Fatalf("expected 2 digests, got %d (%v)", sent, err)
	}
	first := notifier.sent[0]
	if first.To != "office@example.com" || first.Subject != "Weekly Schedule for Ada" {
		t.Fatalf("unexpected digest %+v", first)
	}
	wantBody := "Hello,\n\nHere is my schedule for this week:\n\nTuesday: 10:00-10:30 AM\n\nBest,\nAda"
	if first.Body != wantBody {
		t.Fatalf("expected body %q, got %q", wantBody, first.Body)
	}
	if notifier.sent[1].Subject != "Weekly Schedule for zed@example.com" {
		t.Fatalf("expected email fallback in subject, got %q", notifier.sent[1].Subject)
	}
	// 01:00 UTC on March 2 is still March 1 in Los Angeles.
	if want := at(1, 0, 0); !events.windows[0].Start.Equal(want) || !events.windows[0].End.Equal(want.AddDate(0, 0, 7)) {
		t.Fatalf("unexpected window %+v", events.windows[0])
	}
}

type countingRunner struct {
	calls int
	err   error
}

func (c *countingRunner) Run(ctx context.Context) (int, error) {
	c.calls++
	return 1, c.err
}

func TestRunTask(t *testing.T) {
	ok := &countingRunner{}
	failing := &countingRunner{err: errors.New("db down")}
	if err := runTask(ok, discard)(context.Background(), asynq.NewTask(TypeReminderScan, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := runTask(failing, discard)(context.Background(), asynq.NewTask(TypeWeeklyDigest, nil)); err == nil {
		t.Fatalf("expected error to propagate to asynq")
	}
	if ok.calls != 1 || failing.calls != 1 {
		t.Fatalf("expected each runner once, got %d and %d", ok.calls, failing.calls)
	}
}
