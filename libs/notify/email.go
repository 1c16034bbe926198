// Package notify carries email requests from producing services to the
// notification-service over the outbox.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
)

// Message kinds.
const (
	KindBookingConfirmation = "booking_confirmation"
	KindCancellation        = "cancellation"
	KindReminder            = "reminder"
	KindWeeklyDigest        = "weekly_digest"
)

// EmailRequest is the payload of notification.email.requested.v1.
type EmailRequest struct {
	NotificationID string   `json:"notification_id"`
	Kind           string   `json:"kind"`
	SenderUserID   string   `json:"sender_user_id,omitempty"`
	TeacherID      string   `json:"teacher_id,omitempty"`
	To             string   `json:"to"`
	Cc             []string `json:"cc,omitempty"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
}

func (r EmailRequest) Validate() error {
	if strings.TrimSpace(r.To) == "" {
		return errors.New("to is required")
	}
	if strings.TrimSpace(r.Subject) == "" {
		return errors.New("subject is required")
	}
	return nil
}

func FromMessage(msg availability.Message) EmailRequest {
	return EmailRequest{
		NotificationID: uuid.NewString(),
		Kind:           msg.Kind,
		SenderUserID:   msg.SenderUserID,
		TeacherID:      msg.TeacherID,
		To:             strings.TrimSpace(msg.To),
		Cc:             msg.Cc,
		Subject:        msg.Subject,
		Body:           msg.Body,
	}
}

func Decode(raw []byte) (EmailRequest, error) {
	var req EmailRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return EmailRequest{}, err
	}
	return req, req.Validate()
}

type outboxWriter interface {
	Insert(ctx context.Context, exec outbox.Execer, evt outbox.Event) error
}

// OutboxNotifier queues messages as email request events. Delivery happens
// asynchronously in the notification-service.
type OutboxNotifier struct {
	outbox outboxWriter
}

func NewOutboxNotifier(repo outboxWriter) *OutboxNotifier {
	return &OutboxNotifier{outbox: repo}
}

func (n *OutboxNotifier) Send(ctx context.Context, msg availability.Message) error {
	return n.SendWith(ctx, nil, msg)
}

// SendWith queues msg through exec, so the request commits with the caller's transaction.
func (n *OutboxNotifier) SendWith(ctx context.Context, exec outbox.Execer, msg availability.Message) error {
	req := FromMessage(msg)
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", availability.ErrNotificationFailed, err)
	}
	evt, err := outbox.NewEvent("notification", req.NotificationID, outbox.TopicEmailRequested, req)
	if err != nil {
		return fmt.Errorf("%w: %v", availability.ErrNotificationFailed, err)
	}
	if err := n.outbox.Insert(ctx, exec, evt); err != nil {
		return fmt.Errorf("%w: %v", availability.ErrNotificationFailed, err)
	}
	return nil
}

var _ availability.Notifier = (*OutboxNotifier)(nil)
