// Package metrics turns lesson and notification events into per-teacher daily counters.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/segmentio/kafka-go"
)

type Counter int

const (
	LessonsBooked Counter = iota
	LessonsCancelled
	NotificationsSent
	NotificationsFailed
)

// Column is the lesson_daily_metrics column counting c.
func (c Counter) Column() string {
	switch c {
	case LessonsBooked:
		return "lessons_booked"
	case LessonsCancelled:
		return "lessons_cancelled"
	case NotificationsSent:
		return "notifications_sent"
	case NotificationsFailed:
		return "notifications_failed"
	}
	return ""
}

// CounterFor maps a consumed topic to its counter.
func CounterFor(topic string) (Counter, bool) {
	switch topic {
	case outbox.TopicLessonBooked:
		return LessonsBooked, true
	case outbox.TopicLessonCancelled:
		return LessonsCancelled, true
	case outbox.TopicNotificationSent:
		return NotificationsSent, true
	case outbox.TopicNotificationFailed:
		return NotificationsFailed, true
	}
	return 0, false
}

// Topics lists every topic the recorder consumes.
var Topics = []string{
	outbox.TopicLessonBooked,
	outbox.TopicLessonCancelled,
	outbox.TopicNotificationSent,
	outbox.TopicNotificationFailed,
}

// Increment is one counter bump for a teacher on a UTC day.
type Increment struct {
	TeacherID string
	Day       time.Time
	Counter   Counter
}

// Decode extracts the increment carried by a message on topic. The day is the UTC date
// the event occurred.
func Decode(topic string, raw []byte) (Increment, error) {
	counter, ok := CounterFor(topic)
	if !ok {
		return Increment{}, fmt.Errorf("unsupported topic %q", topic)
	}
	var payload struct {
		TeacherID  string    `json:"teacher_id"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Increment{}, err
	}
	if strings.TrimSpace(payload.TeacherID) == "" {
		return Increment{}, fmt.Errorf("missing teacher_id")
	}
	if payload.OccurredAt.IsZero() {
		return Increment{}, fmt.Errorf("missing occurred_at")
	}
	at := payload.OccurredAt.UTC()
	return Increment{
		TeacherID: payload.TeacherID,
		Day:       time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
		Counter:   counter,
	}, nil
}

type Store interface {
	Bump(ctx context.Context, inc Increment) error
}

type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Handle bumps the counter for one consumed event. Undecodable payloads are logged and
// dropped.
func (r *Recorder) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	topic := meta.EventType
	inc, err := Decode(topic, msg.Value)
	if err != nil {
		r.logger.Error("invalid event payload", "err", err, "topic", topic, "event_id", meta.EventID)
		return nil
	}
	if err := r.store.Bump(ctx, inc); err != nil {
		r.logger.Error("failed to update daily metrics", "err", err, "teacher_id", inc.TeacherID)
		return err
	}
	r.logger.Info("metric recorded", "teacher_id", inc.TeacherID, "counter", inc.Counter.Column(), "day", inc.Day.Format(time.DateOnly))
	return nil
}
