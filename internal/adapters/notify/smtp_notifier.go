package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

// SMTPNotifier mails decision alerts through a relay
type SMTPNotifier struct {
	addr    string
	from    string
	to      []string
	timeout time.Duration
	anon    *Anonymizer
	logger  *zap.Logger
	now     func() time.Time
}

// NewSMTPNotifier creates a notifier that relays through addr
func NewSMTPNotifier(addr, from string, to []string, timeout time.Duration, anon *Anonymizer, logger *zap.Logger) (*SMTPNotifier, error) {
	if addr == "" {
		return nil, &core.ConfigError{Key: "notify.smtp.address", Reason: "is required"}
	}
	if from == "" || len(to) == 0 {
		return nil, &core.ConfigError{Key: "notify.smtp.to", Reason: "sender and at least one recipient are required"}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if anon == nil {
		anon = NewAnonymizer("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPNotifier{
		addr:    addr,
		from:    from,
		to:      to,
		timeout: timeout,
		anon:    anon,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Notify mails the event to the configured recipients
func (n *SMTPNotifier) Notify(ctx context.Context, event core.DecisionEvent) error {
	title, body := FormatEvent(event, n.anon)
	return n.send(ctx, n.message(title, body))
}

func (n *SMTPNotifier) message(subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

// send delivers data with a single SMTP transaction
func (n *SMTPNotifier) send(ctx context.Context, data []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	dialer := net.Dialer{Timeout: n.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP relay: %w", err)
	}

	deadline := time.Now().Add(n.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(n.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range n.to {
		if err := c.Rcpt(recipient, nil); err != nil {
			n.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		n.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}
