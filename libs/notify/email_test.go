package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
)

type fakeOutbox struct {
	events []outbox.Event
	err    error
}

func (f *fakeOutbox) Insert(ctx context.Context, exec outbox.Execer, evt outbox.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func TestOutboxNotifier_Send(t *testing.T) {
	fo := &fakeOutbox{}
	n := NewOutboxNotifier(fo)
	err := n.Send(context.Background(), availability.Message{
		Kind:    KindBookingConfirmation,
		To:      "office@example.com",
		Cc:      []string{"teacher@example.com"},
		Subject: "New Lesson Booked: Ada Lovelace",
		Body:    "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fo.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(fo.events))
	}
	if fo.events[0].EventType != outbox.TopicEmailRequested {
		t.Fatalf("expected %s, got %s", outbox.TopicEmailRequested, fo.events[0].EventType)
	}
	req, err := Decode(fo.events[0].Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.NotificationID == "" || fo.events[0].AggregateID != req.NotificationID {
		t.Fatalf("expected notification id as aggregate id")
	}
	if len(req.Cc) != 1 || req.Cc[0] != "teacher@example.com" {
		t.Fatalf("unexpected cc %v", req.Cc)
	}
}

func TestOutboxNotifier_Failures(t *testing.T) {
	n := NewOutboxNotifier(&fakeOutbox{err: errors.New("db down")})
	err := n.Send(context.Background(), availability.Message{To: "a@example.com", Subject: "s"})
	if !errors.Is(err, availability.ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}

	n = NewOutboxNotifier(&fakeOutbox{})
	if err := n.Send(context.Background(), availability.Message{Subject: "s"}); !errors.Is(err, availability.ErrNotificationFailed) {
		t.Fatalf("expected validation failure for empty recipient, got %v", err)
	}
}

func TestDecode_RejectsMissingSubject(t *testing.T) {
	if _, err := Decode([]byte(`{"to":"a@example.com"}`)); err == nil {
		t.Fatalf("expected error")
	}
}
