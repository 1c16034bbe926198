package delivery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/lessonbook/libs/notify"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
	"github.com/md-rashed-zaman/lessonbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/lessonbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type ResultStore interface {
	Save(ctx context.Context, n storage.Notification, evt outbox.Event) error
}

// Processor handles notification.email.requested.v1 messages.
type Processor struct {
	sender     email.Sender
	results    ResultStore
	logger     *slog.Logger
	failSuffix string
	now        func() time.Time
}

// NewProcessor builds a Processor. Recipients ending in failSuffix fail without being
// sent, which end-to-end tests use to exercise the failure path.
func NewProcessor(sender email.Sender, results ResultStore, logger *slog.Logger, failSuffix string) *Processor {
	return &Processor{
		sender:     sender,
		results:    results,
		logger:     logger,
		failSuffix: strings.TrimSpace(failSuffix),
		now:        time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	req, err := notify.Decode(msg.Value)
	if err != nil {
		p.logger.Error("invalid email request", "err", err)
		return nil
	}
	if req.NotificationID == "" {
		req.NotificationID = uuid.NewString()
	}

	status := StatusSent
	reason := ""
	provider := ""
	if p.failSuffix != "" && strings.HasSuffix(req.To, p.failSuffix) {
		status = StatusFailed
		reason = "simulated failure"
	} else if provider, err = p.sender.Send(ctx, req); err != nil {
		status = StatusFailed
		reason = err.Error()
		p.logger.Error("email send failed", "err", err, "notification_id", req.NotificationID, "kind", req.Kind)
	}
	if provider == "" {
		provider = "none"
	}

	result := outbox.NotificationResult{
		NotificationID: req.NotificationID,
		Kind:           req.Kind,
		TeacherID:      req.TeacherID,
		Recipient:      req.To,
		Provider:       provider,
		Status:         status,
		Error:          reason,
		OccurredAt:     p.now().UTC(),
	}
	topic := outbox.TopicNotificationSent
	if status == StatusFailed {
		topic = outbox.TopicNotificationFailed
	}
	evt, err := outbox.NewEvent("notification", req.NotificationID, topic, result)
	if err != nil {
		return err
	}

	if err := p.results.Save(ctx, storage.Notification{
		ID:          req.NotificationID,
		Kind:        req.Kind,
		TeacherID:   req.TeacherID,
		Recipient:   req.To,
		Cc:          req.Cc,
		Subject:     req.Subject,
		Provider:    provider,
		Status:      status,
		ErrorReason: reason,
	}, evt); err != nil {
		p.logger.Error("failed to persist notification", "err", err, "notification_id", req.NotificationID)
		return err
	}

	p.logger.Info("email processed", "notification_id", req.NotificationID, "kind", req.Kind, "provider", provider, "status", status)
	return nil
}
