package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/segmentio/kafka-go"
)

func TestDecode(t *testing.T) {
	raw := []byte(`{"event_id":"e1","teacher_id":"t1","occurred_at":"2026-03-02T23:30:00-08:00"}`)
	inc, err := Decode(outbox.TopicLessonBooked, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inc.TeacherID != "t1" || inc.Counter != LessonsBooked {
		t.Fatalf("unexpected increment %+v", inc)
	}
	// 23:30 in Los Angeles is the next day in UTC.
	if want := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC); !inc.Day.Equal(want) {
		t.Fatalf("expected day %s, got %s", want, inc.Day)
	}

	if _, err := Decode(outbox.TopicNotificationSent, []byte(`{"occurred_at":"2026-03-02T10:00:00Z"}`)); err == nil {
		t.Fatalf("expected error for missing teacher_id")
	}
	if _, err := Decode("other.topic", raw); err == nil {
		t.Fatalf("expected error for unknown topic")
	}
}

func TestCounterColumns(t *testing.T) {
	for _, topic := range Topics {
		c, ok := CounterFor(topic)
		if !ok || c.Column() == "" {
			t.Fatalf("topic %s has no counter column", topic)
		}
	}
}

type fakeStore struct {
	got []Increment
	err error
}

func (f *fakeStore) Bump(ctx context.Context, inc Increment) error {
	f.got = append(f.got, inc)
	return f.err
}

func TestRecorder_Handle(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	msg := kafka.Message{
		Topic:   outbox.TopicNotificationFailed,
		Headers: []kafka.Header{{Key: kafkax.HeaderEventID, Value: []byte("evt-1")}},
		Value:   []byte(`{"teacher_id":"t1","status":"failed","occurred_at":"2026-03-02T10:00:00Z"}`),
	}
	if err := r.Handle(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.got) != 1 || store.got[0].Counter != NotificationsFailed {
		t.Fatalf("unexpected increments %+v", store.got)
	}

	if err := r.Handle(context.Background(), kafka.Message{Topic: outbox.TopicLessonBooked, Value: []byte(`not json`)}); err != nil {
		t.Fatalf("expected bad payloads to be dropped, got %v", err)
	}

	store.err = errors.New("db down")
	if err := r.Handle(context.Background(), msg); err == nil {
		t.Fatalf("expected store error to propagate")
	}
}
