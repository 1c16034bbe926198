package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/notify"
	"github.com/md-rashed-zaman/lessonbook/services/scheduler-service/internal/model"
)

const noEventsLine = "No upcoming events."

type DigestStore interface {
	DigestTeachers(ctx context.Context) ([]model.Teacher, error)
}

// Digest sends each teacher's office a summary of the coming week.
type Digest struct {
	store    DigestStore
	events   EventSource
	notifier availability.Notifier
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewDigest(store DigestStore, events EventSource, notifier availability.Notifier, loc *time.Location, logger *slog.Logger) *Digest {
	return &Digest{
		store:    store,
		events:   events,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

func (d *Digest) Run(ctx context.Context) (int, error) {
	teachers, err := d.store.DigestTeachers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list teachers: %w", err)
	}
	sent := 0
	for _, t := range teachers {
		if err := d.sendDigest(ctx, t); err != nil {
			d.logger.Error("weekly digest failed", "teacher_id", t.ID, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (d *Digest) sendDigest(ctx context.Context, teacher model.Teacher) error {
	loc := teacher.Location(d.loc)
	now := d.now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	window := availability.Interval{Start: start, End: start.AddDate(0, 0, 7)}

	events, err := d.events.Events(ctx, teacher, window)
	if err != nil {
		return err
	}
	return d.notifier.Send(ctx, digestMessage(teacher, FormatSchedule(events, loc)))
}

// FormatSchedule renders timed events as one line per weekday, in the order the days
// first appear, with overlapping or touching events merged. All-day events are left out.
func FormatSchedule(events []availability.CalendarEvent, loc *time.Location) string {
	var days []string
	byDay := map[string][]availability.Interval{}
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		day := ev.Start.In(loc).Format("Monday")
		if _, seen := byDay[day]; !seen {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], ev.Interval())
	}

	lines := make([]string, 0, len(days))
	for _, day := range days {
		merged := availability.Merge(byDay[day])
		if len(merged) == 0 {
			continue
		}
		ranges := make([]string, 0, len(merged))
		for _, iv := range merged {
			ranges = append(ranges, iv.Start.In(loc).Format("3:04")+"-"+iv.End.In(loc).Format("3:04 PM"))
		}
		lines = append(lines, day+": "+strings.Join(ranges, ", "))
	}
	if len(lines) == 0 {
		return noEventsLine
	}
	return strings.Join(lines, "\n")
}

func digestMessage(teacher model.Teacher, schedule string) availability.Message {
	name := teacher.FirstName
	if strings.TrimSpace(name) == "" {
		name = teacher.Email
	}
	return availability.Message{
		Kind:         notify.KindWeeklyDigest,
		To:           teacher.OfficeEmail,
		Subject:      "Weekly Schedule for " + name,
		Body:         fmt.Sprintf("Hello,\n\nHere is my schedule for this week:\n\n%s\n\nBest,\n%s", schedule, teacher.FirstName),
		SenderUserID: teacher.ID,
		TeacherID:    teacher.ID,
	}
}
