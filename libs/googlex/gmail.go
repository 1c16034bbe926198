package googlex

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// Gmail sends mail as the authorized user.
type Gmail struct {
	svc *gmail.Service
}

func (g *Gmail) Send(ctx context.Context, to string, cc []string, subject, body string) (string, error) {
	msg, err := g.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: RawMessage(to, cc, subject, body),
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return msg.Id, nil
}

// RawMessage renders a plain-text RFC 2822 message, base64url encoded as the Gmail API
// expects.
func RawMessage(to string, cc []string, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}
