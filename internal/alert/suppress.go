package alert

import (
	"time"

	"github.com/mfigueroa/linealert/internal/cache"
)

// Suppressor limits repeat alerts to one per (user, line) per window.
// Without it every tick that still matches re-notifies. A nil *Suppressor
// allows everything, so callers can leave suppression unconfigured.
type Suppressor struct {
	recent *cache.Cache[struct{}]
}

// NewSuppressor creates a suppressor with the given window. Returns nil
// when window <= 0 (suppression disabled).
func NewSuppressor(window time.Duration) *Suppressor {
	if window <= 0 {
		return nil
	}
	return &Suppressor{recent: cache.New[struct{}](window)}
}

// Allow reports whether an alert for (phone, line) may be sent now. It
// does not start the window; callers Mark after the dispatch succeeds so
// a failed send does not silence the pair.
func (s *Suppressor) Allow(phone, line string) bool {
	if s == nil {
		return true
	}
	_, seen := s.recent.Get(suppressKey(phone, line))
	return !seen
}

// Mark starts the suppression window for (phone, line).
func (s *Suppressor) Mark(phone, line string) {
	if s != nil {
		s.recent.Set(suppressKey(phone, line), struct{}{})
	}
}

func suppressKey(phone, line string) string {
	return phone + "|" + line
}

// Close releases the underlying cache.
func (s *Suppressor) Close() {
	if s != nil {
		s.recent.Close()
	}
}
