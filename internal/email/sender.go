// Package email delivers outreach messages over SMTP and renders the
// template-based fallback content used when AI generation is disabled.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"dunning_backend/platform/logger"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	Body     string
	FromName string
	ReplyTo  string
}

// Sender delivers a message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

// NewSMTPSender creates an SMTPSender with the given credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromEmail: fromEmail,
	}
}

// Send delivers the message. SMTP does not hand back a provider id, so we
// mint one ourselves and set it as the Message-ID header; opens and clicks
// report back against it.
func (s *SMTPSender) Send(ctx context.Context, m Message) (string, error) {
	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), s.host)

	msg := gomail.NewMsg()
	if err := msg.FromFormat(m.FromName, s.fromEmail); err != nil {
		return "", fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return "", fmt.Errorf("smtp to: %w", err)
	}
	if m.ReplyTo != "" {
		if err := msg.ReplyTo(m.ReplyTo); err != nil {
			return "", fmt.Errorf("smtp reply-to: %w", err)
		}
	}
	msg.SetMessageIDWithValue(messageID)
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, m.Body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

// LogSender is a Sender that only logs, for local development without an
// SMTP server. Every send succeeds.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, m Message) (string, error) {
	id := uuid.NewString()
	s.log.Info("email_logged_not_sent", "to", m.To, "subject", m.Subject, "message_id", id)
	return id, nil
}
