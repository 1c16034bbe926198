package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/notify"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/services/scheduler-service/internal/model"
)

const (
	reminderSubject    = "Reminder: Lesson in 2 Days"
	reminderTimeLayout = "Jan 2, 2006, 3:04 PM"
)

type ReminderStore interface {
	ReminderTeachers(ctx context.Context) ([]model.Teacher, error)
	StudentsOf(ctx context.Context, teacherSlug string) ([]model.Student, error)
	DeliverOnce(ctx context.Context, d model.Delivery, send func(tx pgx.Tx) error) (bool, error)
}

// TxNotifier queues a message inside an open transaction.
type TxNotifier interface {
	SendWith(ctx context.Context, exec outbox.Execer, msg availability.Message) error
}

// Reminders emails students whose lesson starts one reminder lookahead from now.
type Reminders struct {
	store    ReminderStore
	events   EventSource
	notifier TxNotifier
	window   availability.ReminderWindow
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewReminders(store ReminderStore, events EventSource, notifier TxNotifier, window availability.ReminderWindow, loc *time.Location, logger *slog.Logger) *Reminders {
	return &Reminders{
		store:    store,
		events:   events,
		notifier: notifier,
		window:   window,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Run scans every connected teacher and returns how many reminders were queued. Failures
// for one teacher are logged and the scan moves on.
func (r *Reminders) Run(ctx context.Context) (int, error) {
	teachers, err := r.store.ReminderTeachers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list teachers: %w", err)
	}
	now := r.now()
	sent := 0
	for _, t := range teachers {
		n, err := r.remindTeacher(ctx, t, now)
		sent += n
		if err != nil {
			r.logger.Error("reminder scan failed", "teacher_id", t.ID, "err", err)
		}
	}
	return sent, nil
}

func (r *Reminders) remindTeacher(ctx context.Context, teacher model.Teacher, now time.Time) (int, error) {
	events, err := r.events.Events(ctx, teacher, r.window.QueryRange(now))
	if err != nil {
		return 0, err
	}

	var students []model.Student
	loaded := false
	sent := 0
	for _, ev := range events {
		if !r.window.Matches(ev, now) {
			continue
		}
		if !loaded {
			if students, err = r.store.StudentsOf(ctx, teacher.Slug); err != nil {
				return sent, fmt.Errorf("list students: %w", err)
			}
			loaded = true
		}
		student, ok := MatchStudent(ev, students)
		if !ok || strings.TrimSpace(student.Email) == "" {
			r.logger.Info("no student found for event", "teacher_id", teacher.ID, "event_id", ev.Ref)
			continue
		}

		msg := reminderMessage(teacher, student, ev.Start.In(teacher.Location(r.loc)))
		delivered, err := r.store.DeliverOnce(ctx, model.Delivery{
			EventID:   string(ev.Ref),
			TeacherID: teacher.ID,
			StudentID: student.ID,
			StartsAt:  ev.Start,
		}, func(tx pgx.Tx) error {
			return r.notifier.SendWith(ctx, tx, msg)
		})
		if err != nil {
			r.logger.Error("queue reminder failed", "teacher_id", teacher.ID, "event_id", ev.Ref, "err", err)
			continue
		}
		if delivered {
			sent++
			r.logger.Info("reminder queued", "teacher_id", teacher.ID, "student_id", student.ID, "event_id", ev.Ref)
		}
	}
	return sent, nil
}

// MatchStudent resolves the student of a lesson event: the private student id when it
// names one of students, otherwise the first word of the summary against first or last
// names.
func MatchStudent(ev availability.CalendarEvent, students []model.Student) (model.Student, bool) {
	if id := strings.TrimSpace(ev.StudentID); id != "" {
		for _, s := range students {
			if s.ID == id {
				return s, true
			}
		}
	}
	words := strings.Fields(ev.Summary)
	if len(words) == 0 {
		return model.Student{}, false
	}
	name := words[0]
	for _, s := range students {
		if strings.Contains(s.FirstName, name) || strings.Contains(s.LastName, name) {
			return s, true
		}
	}
	return model.Student{}, false
}

func reminderMessage(teacher model.Teacher, student model.Student, start time.Time) availability.Message {
	body := fmt.Sprintf("Hi %s,\n\nThis is a friendly reminder that you have a lesson with %s on %s.\n\nSee you then!\n\n- %s\n",
		student.FirstName, teacher.FirstName, start.Format(reminderTimeLayout), teacher.FirstName)
	return availability.Message{
		Kind:         notify.KindReminder,
		To:           student.Email,
		Subject:      reminderSubject,
		Body:         body,
		SenderUserID: teacher.ID,
		TeacherID:    teacher.ID,
	}
}
