// Package metrics exposes badgesink's Prometheus instruments.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the instruments updated by the poll loop and dispatcher.
// All methods are safe on a nil *Collector and do nothing.
type Collector struct {
	Fetches          *prometheus.CounterVec   // mode, result: ok|error
	FetchDuration    *prometheus.HistogramVec // mode
	BatchSize        prometheus.Histogram
	EventsDispatched prometheus.Counter
	HandlerFailures  *prometheus.CounterVec // kind: error|panic
	Backoffs         prometheus.Counter
	TokenRequests    *prometheus.CounterVec // result: ok|error
	CursorMode       prometheus.Gauge
}

// NewCollector creates the instruments and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		return nil, errors.New("metrics registerer cannot be nil")
	}

	c := &Collector{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "badgesink_fetches_total",
			Help: "Badge report fetches by mode and result.",
		}, []string{"mode", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "badgesink_fetch_duration_seconds",
			Help:    "Duration of a badge report fetch, token request included.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"mode"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "badgesink_batch_size",
			Help:    "Number of events per successful fetch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		EventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "badgesink_events_dispatched_total",
			Help: "Badge events delivered to the handler.",
		}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "badgesink_handler_failures_total",
			Help: "Handler invocations that returned an error or panicked.",
		}, []string{"kind"}),
		Backoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "badgesink_backoffs_total",
			Help: "Backoff sleeps after an empty batch.",
		}),
		TokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "badgesink_token_requests_total",
			Help: "Access token requests by result.",
		}, []string{"result"}),
		CursorMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "badgesink_cursor_mode",
			Help: "1 once the loop fetches by cursor, 0 while it fetches by time window.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.Fetches, c.FetchDuration, c.BatchSize, c.EventsDispatched,
		c.HandlerFailures, c.Backoffs, c.TokenRequests, c.CursorMode,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveFetch records one fetch outcome.
func (c *Collector) ObserveFetch(mode string, events int, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.Fetches.WithLabelValues(mode, result(err)).Inc()
	c.FetchDuration.WithLabelValues(mode).Observe(d.Seconds())
	if err == nil {
		c.BatchSize.Observe(float64(events))
	}
}

// SetCursorMode flips the mode gauge.
func (c *Collector) SetCursorMode(on bool) {
	if c == nil {
		return
	}
	if on {
		c.CursorMode.Set(1)
	} else {
		c.CursorMode.Set(0)
	}
}

// EventDispatched counts one delivered event.
func (c *Collector) EventDispatched() {
	if c == nil {
		return
	}
	c.EventsDispatched.Inc()
}

// HandlerFailed counts a handler failure; kind is "error" or "panic".
func (c *Collector) HandlerFailed(kind string) {
	if c == nil {
		return
	}
	c.HandlerFailures.WithLabelValues(kind).Inc()
}

// BackedOff counts one backoff sleep.
func (c *Collector) BackedOff() {
	if c == nil {
		return
	}
	c.Backoffs.Inc()
}

// TokenRequested records a token request outcome.
func (c *Collector) TokenRequested(err error) {
	if c == nil {
		return
	}
	c.TokenRequests.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
