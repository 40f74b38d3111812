package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// SMTPSender sends SMS via a carrier's email-to-SMS gateway.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   *slog.Logger

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an email-to-SMS sender. Returns an error when the
// mail account is not configured.
func NewSMTPSender(host string, port int, username, password, from string, logger *slog.Logger) (*SMTPSender, error) {
	if host == "" || username == "" || password == "" {
		return nil, fmt.Errorf("SMTP mail settings are not configured")
	}
	if from == "" {
		from = username
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		logger:   logger,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, carrier, subject, body string) error {
	rcpt, err := GatewayAddress(to, carrier)
	if err != nil {
		return fmt.Errorf("resolve gateway address: %w", err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", rcpt)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := s.sendMail(addr, auth, s.from, []string{rcpt}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", rcpt, err)
	}

	s.logger.Debug("SMS sent via carrier gateway", "to", rcpt)
	return nil
}
