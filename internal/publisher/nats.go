// Package publisher emits alert events to NATS so other consumers (alert
// history, analytics) can react without coupling to the sweep.
package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// PublisherMetrics is the small metrics surface the publisher needs.
type PublisherMetrics interface {
	EventPublishedInc()
	EventPublishErrInc()
}

// AlertEvent is the message published for every dispatched alert.
type AlertEvent struct {
	ID             string    `json:"id"`
	Phone          string    `json:"phone"`
	Line           string    `json:"line"`
	StopID         string    `json:"stopId"`
	StopName       string    `json:"stopName"`
	ArrivalMinutes int       `json:"arrivalMinutes"`
	SentAt         time.Time `json:"sentAt"`
}

// NATSPublisher publishes alert events. A nil *NATSPublisher is a valid
// no-op, so callers do not need to branch on whether NATS is configured.
type NATSPublisher struct {
	nc      *nats.Conn
	metrics PublisherMetrics
	logger  *slog.Logger
}

// New connects to NATS. Returns (nil, nil) when url is empty.
func New(url string, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("linealert"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc, metrics: m, logger: logger}, nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Drain()
	p.nc.Close()
}

// PublishAlert publishes one alert event on alerts.<line>.
func (p *NATSPublisher) PublishAlert(ev AlertEvent) error {
	if p == nil {
		return nil
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	subject := "alerts." + subjectToken(ev.Line)
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.EventPublishErrInc()
		} else {
			p.metrics.EventPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
