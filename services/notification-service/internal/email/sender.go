package email

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/md-rashed-zaman/lessonbook/libs/notify"
)

// Provider ids recorded on notifications.
const (
	ProviderSMTP  = "smtp"
	ProviderGmail = "gmail"
)

// Sender delivers one email request and reports which provider handled it.
type Sender interface {
	Send(ctx context.Context, req notify.EmailRequest) (string, error)
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr     string
	from     string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@lessonbook.local"
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%s", host, port),
		from:     from,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, req notify.EmailRequest) (string, error) {
	rcpts := append([]string{req.To}, req.Cc...)
	msg := buildMessage(s.from, req.To, req.Cc, req.Subject, req.Body)
	if err := s.sendMail(s.addr, nil, s.from, rcpts, []byte(msg)); err != nil {
		return ProviderSMTP, fmt.Errorf("smtp send: %w", err)
	}
	return ProviderSMTP, nil
}

func buildMessage(from, to string, cc []string, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
