package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/linealert/internal/metrics"
	"github.com/mfigueroa/linealert/internal/notify"
	"github.com/mfigueroa/linealert/internal/publisher"
	"github.com/mfigueroa/linealert/internal/stops"
	"github.com/mfigueroa/linealert/internal/store"
	"github.com/mfigueroa/linealert/internal/transit"
)

// UserSource is the slice of the persistence layer the sweep needs.
type UserSource interface {
	ListUsers(ctx context.Context) ([]store.User, error)
}

// PredictionSource yields all predictions (bus and train) for a stop.
type PredictionSource interface {
	AllPredictions(ctx context.Context, stopID string) []transit.Prediction
}

// EventPublisher receives an event for every dispatched alert.
type EventPublisher interface {
	PublishAlert(ev publisher.AlertEvent) error
}

// SweeperConfig wires the sweep's collaborators. Suppressor, Events, and
// Metrics may be nil.
type SweeperConfig struct {
	Store      UserSource
	Stops      *stops.Index
	Source     PredictionSource
	Sender     notify.Sender
	Suppressor *Suppressor
	Events     EventPublisher
	Metrics    *metrics.Collector
	Workers    int
	Logger     *slog.Logger
}

// Sweeper runs the periodic notification check.
type Sweeper struct {
	cfg     SweeperConfig
	running atomic.Bool
}

// NewSweeper validates the config and creates a Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{cfg: cfg}
}

// Result summarizes one sweep tick.
type Result struct {
	Skipped          bool // previous tick still running
	UsersScanned     int
	UsersSkipped     int
	AlertsSent       int
	AlertsFailed     int
	AlertsSuppressed int
	Duration         time.Duration
	Errors           []string
}

// Summary renders a one-line digest for logs.
func (r Result) Summary() string {
	if r.Skipped {
		return "skipped (previous tick still running)"
	}
	s := fmt.Sprintf("scanned=%d skipped=%d sent=%d failed=%d suppressed=%d duration=%s",
		r.UsersScanned, r.UsersSkipped, r.AlertsSent, r.AlertsFailed, r.AlertsSuppressed,
		r.Duration.Round(time.Millisecond))
	if len(r.Errors) > 0 {
		s += " errors=" + strings.Join(r.Errors, "; ")
	}
	return s
}

// Start runs a sweep every interval until ctx is cancelled. Intended to
// be called with `go`.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	log := s.cfg.Logger
	log.Info("Notification sweep started", "interval", interval, "workers", s.cfg.Workers)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result := s.Run(ctx)
			if result.AlertsSent+result.AlertsFailed > 0 || len(result.Errors) > 0 {
				log.Info("Sweep tick complete", "summary", result.Summary())
			}
		case <-ctx.Done():
			log.Info("Notification sweep stopped")
			return
		}
	}
}

// Run performs one sweep tick. It never returns an error: per-user and
// per-alert failures are logged and counted, and a tick that overlaps a
// still-running one is skipped outright.
func (s *Sweeper) Run(ctx context.Context) Result {
	if !s.running.CompareAndSwap(false, true) {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.SweepSkipped.Inc()
		}
		return Result{Skipped: true}
	}
	defer s.running.Store(false)

	start := time.Now()
	var result Result

	users, err := s.cfg.Store.ListUsers(ctx)
	if err != nil {
		s.cfg.Logger.Error("Sweep: list users failed", "error", err)
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}

	workers := s.cfg.Workers
	if workers > len(users) {
		workers = len(users)
	}

	ch := make(chan store.User, len(users))
	for _, u := range users {
		ch <- u
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range ch {
				outcome := s.sweepUser(ctx, u)

				mu.Lock()
				result.UsersScanned++
				if outcome.skipped {
					result.UsersSkipped++
				}
				result.AlertsSent += outcome.sent
				result.AlertsFailed += outcome.failed
				result.AlertsSuppressed += outcome.suppressed
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	result.Duration = time.Since(start)

	if m := s.cfg.Metrics; m != nil {
		m.SweepRuns.Inc()
		m.SweepDuration.Observe(result.Duration.Seconds())
		m.UsersScanned.Add(float64(result.UsersScanned))
		m.AlertsSent.Add(float64(result.AlertsSent))
		m.AlertsFailed.Add(float64(result.AlertsFailed))
		m.AlertsSuppressed.Add(float64(result.AlertsSuppressed))
	}
	return result
}

type userOutcome struct {
	skipped    bool
	sent       int
	failed     int
	suppressed int
}

func (s *Sweeper) sweepUser(ctx context.Context, u store.User) userOutcome {
	log := s.cfg.Logger

	if !u.HasHome() {
		s.countSkip("no_home")
		return userOutcome{skipped: true}
	}
	if len(u.FavoriteLines) == 0 {
		s.countSkip("no_favorites")
		return userOutcome{skipped: true}
	}

	stop, err := s.cfg.Stops.Nearest(*u.HomeLat, *u.HomeLng)
	if err != nil {
		log.Warn("Sweep: nearest stop failed", "phone", u.PhoneNumber, "error", err)
		s.countSkip("no_stop")
		return userOutcome{skipped: true}
	}

	predictions := s.cfg.Source.AllPredictions(ctx, stop.ID)
	matched := Match(u.FavoriteLines, u.ThresholdMinutes(), predictions)
	if len(matched) == 0 {
		return userOutcome{}
	}

	if u.PhoneNumber == "" || u.Carrier == "" {
		log.Debug("Sweep: no delivery address, skipping dispatch", "phone", u.PhoneNumber)
		return userOutcome{skipped: true}
	}

	var out userOutcome
	for _, p := range matched {
		if !s.cfg.Suppressor.Allow(u.PhoneNumber, p.Line) {
			out.suppressed++
			continue
		}

		a := Alert{
			Phone:          u.PhoneNumber,
			Carrier:        u.Carrier,
			Line:           p.Line,
			Stop:           stop,
			ArrivalMinutes: p.ArrivalMinutes,
		}
		if err := s.cfg.Sender.Send(ctx, a.Phone, a.Carrier, a.Subject(), a.Body()); err != nil {
			log.Warn("Sweep: alert dispatch failed",
				"phone", u.PhoneNumber, "line", p.Line, "error", err)
			out.failed++
			continue
		}
		out.sent++
		s.cfg.Suppressor.Mark(u.PhoneNumber, p.Line)

		if s.cfg.Events != nil {
			ev := publisher.AlertEvent{
				ID:             uuid.NewString(),
				Phone:          u.PhoneNumber,
				Line:           p.Line,
				StopID:         stop.ID,
				StopName:       stop.Name,
				ArrivalMinutes: p.ArrivalMinutes,
				SentAt:         time.Now().UTC(),
			}
			if err := s.cfg.Events.PublishAlert(ev); err != nil {
				log.Warn("Sweep: event publish failed", "line", p.Line, "error", err)
			}
		}
	}
	return out
}

func (s *Sweeper) countSkip(reason string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.UsersSkipped.WithLabelValues(reason).Inc()
	}
}
