// Package otp implements phone verification with one-time codes. Codes
// live in a TTL-bound store keyed by phone number and are consumed on
// successful verification. The store is an injected capability so tests
// and multi-instance deployments can reason about it.
package otp

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mfigueroa/linealert/internal/cache"
	"github.com/mfigueroa/linealert/internal/notify"
)

// DefaultTTL is how long a code stays valid.
const DefaultTTL = 5 * time.Minute

// Service generates, delivers, and verifies one-time codes.
type Service struct {
	codes  *cache.Cache[string]
	sender notify.Sender
	logger *slog.Logger
}

// NewService creates an OTP service delivering codes through sender.
func NewService(ttl time.Duration, sender notify.Sender, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		codes:  cache.New[string](ttl),
		sender: sender,
		logger: logger,
	}
}

// Send generates a 6-digit code for phone and delivers it. A newer code
// replaces any outstanding one.
func (s *Service) Send(ctx context.Context, phone, carrier string) error {
	code := fmt.Sprintf("%06d", rand.IntN(900000)+100000)
	s.codes.Set(phone, code)

	body := "Your verification code is: " + code
	if err := s.sender.Send(ctx, phone, carrier, "Your verification code", body); err != nil {
		s.codes.Delete(phone)
		return fmt.Errorf("deliver code: %w", err)
	}

	s.logger.Info("Verification code sent", "phone", phone)
	return nil
}

// Verify checks the code for phone and consumes it on success.
func (s *Service) Verify(phone, code string) bool {
	stored, ok := s.codes.Get(phone)
	if !ok || stored != code {
		return false
	}
	s.codes.Delete(phone)
	return true
}

// Close releases the code store.
func (s *Service) Close() { s.codes.Close() }
