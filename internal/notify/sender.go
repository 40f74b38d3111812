// Package notify delivers SMS messages to users. Two implementations are
// provided: an email-to-SMS carrier gateway over SMTP and the Twilio REST
// API. Both the OTP flow and the notification sweep go through the same
// Sender interface.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Sender delivers one message to a phone number. carrier is only
// meaningful to gateway-style senders; others ignore it.
type Sender interface {
	Send(ctx context.Context, to, carrier, subject, body string) error
}

// LogSender logs sends instead of delivering them. Used in development
// when no SMS backend is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, carrier, subject, body string) error {
	s.logger.Info("SMS send (log only)", "to", to, "carrier", carrier, "subject", subject, "body", body)
	return nil
}

// carrierGateways maps carrier identifiers to their email-to-SMS domains.
var carrierGateways = map[string]string{
	"att":        "txt.att.net",
	"tmobile":    "tmomail.net",
	"verizon":    "vtext.com",
	"sprint":     "messaging.sprintpcs.com",
	"uscellular": "email.uscc.net",
}

// ValidCarrier reports whether a carrier identifier is known.
func ValidCarrier(carrier string) bool {
	_, ok := carrierGateways[carrier]
	return ok
}

// GatewayAddress returns the email address that reaches a phone through
// its carrier's SMS gateway.
func GatewayAddress(phone, carrier string) (string, error) {
	domain, ok := carrierGateways[carrier]
	if !ok {
		return "", fmt.Errorf("unknown carrier %q", carrier)
	}
	return phone + "@" + domain, nil
}
