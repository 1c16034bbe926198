package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/lessonbook/libs/googlex"
	"github.com/md-rashed-zaman/lessonbook/libs/notify"
)

type Mailbox interface {
	Send(ctx context.Context, to string, cc []string, subject, body string) (string, error)
}

// MailboxOpener returns the Gmail mailbox of a user.
type MailboxOpener func(ctx context.Context, userID string) (Mailbox, error)

func GoogleMailboxes(client *googlex.Client) MailboxOpener {
	return func(ctx context.Context, userID string) (Mailbox, error) {
		gm, err := client.Gmail(ctx, userID)
		if err != nil {
			return nil, err
		}
		return gm, nil
	}
}

// GmailSender sends as the request's sender through their own Gmail account. Requests
// without a sender, or whose sender has not connected Google, go to fallback.
type GmailSender struct {
	open     MailboxOpener
	fallback Sender
	logger   *slog.Logger
}

func NewGmailSender(open MailboxOpener, fallback Sender, logger *slog.Logger) *GmailSender {
	return &GmailSender{open: open, fallback: fallback, logger: logger}
}

func (g *GmailSender) Send(ctx context.Context, req notify.EmailRequest) (string, error) {
	sender := strings.TrimSpace(req.SenderUserID)
	if sender == "" {
		return g.fallback.Send(ctx, req)
	}
	mb, err := g.open(ctx, sender)
	if errors.Is(err, googlex.ErrNotConnected) {
		g.logger.Info("sender has no google token; using fallback", "sender_user_id", sender)
		return g.fallback.Send(ctx, req)
	}
	if err != nil {
		return ProviderGmail, fmt.Errorf("open gmail: %w", err)
	}
	id, err := mb.Send(ctx, req.To, req.Cc, req.Subject, req.Body)
	if err != nil {
		return ProviderGmail, fmt.Errorf("gmail send: %w", err)
	}
	g.logger.Debug("gmail message sent", "message_id", id, "notification_id", req.NotificationID)
	return ProviderGmail, nil
}
