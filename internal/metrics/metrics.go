// Package metrics exposes Prometheus instrumentation for the sweep and
// the prediction gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	SweepRuns     prometheus.Counter
	SweepSkipped  prometheus.Counter
	SweepDuration prometheus.Histogram

	UsersScanned prometheus.Counter
	UsersSkipped *prometheus.CounterVec // reason label: no_home|no_favorites|no_stop

	AlertsSent       prometheus.Counter
	AlertsFailed     prometheus.Counter
	AlertsSuppressed prometheus.Counter

	EventsPublished  prometheus.Counter
	EventPublishErrs prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_sweep_runs_total",
			Help: "Total sweep ticks executed.",
		}),
		SweepSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_sweep_skipped_total",
			Help: "Ticks skipped because the previous sweep was still running.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linealert_sweep_duration_seconds",
			Help:    "Duration of a full sweep tick.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		UsersScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_users_scanned_total",
			Help: "Users examined across all sweep ticks.",
		}),
		UsersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linealert_users_skipped_total",
			Help: "Users skipped during sweeps, by reason.",
		}, []string{"reason"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_alerts_sent_total",
			Help: "Alerts successfully dispatched.",
		}),
		AlertsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_alerts_failed_total",
			Help: "Alert dispatch failures.",
		}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_alerts_suppressed_total",
			Help: "Alerts dropped by the repeat-suppression window.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_events_published_total",
			Help: "Alert events published to the event bus.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linealert_event_publish_errors_total",
			Help: "Alert event publish failures.",
		}),
	}

	reg.MustRegister(
		c.SweepRuns, c.SweepSkipped, c.SweepDuration,
		c.UsersScanned, c.UsersSkipped,
		c.AlertsSent, c.AlertsFailed, c.AlertsSuppressed,
		c.EventsPublished, c.EventPublishErrs,
	)
	return c
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// EventPublishedInc and EventPublishErrInc satisfy the publisher's
// metrics interface.
func (c *Collector) EventPublishedInc()  { c.EventsPublished.Inc() }
func (c *Collector) EventPublishErrInc() { c.EventPublishErrs.Inc() }
