package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
)

type rawSender interface {
	SendRaw(ctx context.Context, raw []byte) (int, error)
}

// Gmail delivers through the Gmail API as the authorized account.
type Gmail struct {
	svc rawSender
}

// NewGmail creates a Gmail transport.
func NewGmail(svc rawSender) *Gmail {
	return &Gmail{svc: svc}
}

func (g *Gmail) Name() string {
	return "gmail"
}

func (g *Gmail) Deliver(ctx context.Context, msg Message) (int, error) {
	raw, err := buildRFC5322(msg)
	if err != nil {
		return 0, fmt.Errorf("buildRFC5322 failed: %w", err)
	}

	return g.svc.SendRaw(ctx, raw)
}

func buildRFC5322(msg Message) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", msg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s; charset=\"UTF-8\"\r\n", msg.ContentType)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	w := quotedprintable.NewWriter(&buf)
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("quotedprintable.Write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("quotedprintable.Close failed: %w", err)
	}

	return buf.Bytes(), nil
}
