package badgesink

import (
	"sync"
	"time"

	"github.com/jpalmerr/badgesink/internal/metrics"
	"github.com/jpalmerr/badgesink/internal/poller"
)

// Mode is the fetch mode of a running [Sink].
type Mode string

const (
	// ModeWindow is the initial mode: polls ask for every event since the
	// sink started.
	ModeWindow Mode = "window"

	// ModeCursor is entered on the first non-empty poll and kept for the
	// rest of the run: polls ask for the events after the last cursor.
	ModeCursor Mode = "cursor"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// Status is a point-in-time snapshot of a [Sink].
type Status struct {
	// Running is true between Start and the end of the poll loop.
	Running bool `json:"running"`

	// Mode is the current fetch mode. Empty before Start.
	Mode Mode `json:"mode,omitempty"`

	// Cursor is the last cursor, set in [ModeCursor].
	Cursor string `json:"cursor,omitempty"`

	// WindowStart is the start of the fetch window, set in [ModeWindow].
	WindowStart *time.Time `json:"window_start,omitempty"`

	// StartedAt is when Start was called.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// LastFetchAt is when the last fetch completed.
	LastFetchAt *time.Time `json:"last_fetch_at,omitempty"`

	Fetches          uint64 `json:"fetches"`
	EventsDispatched uint64 `json:"events_dispatched"`
	HandlerFailures  uint64 `json:"handler_failures"`
	Backoffs         uint64 `json:"backoffs"`

	// Error is the reason the loop stopped, once it has.
	Error string `json:"error,omitempty"`
}

// tracker maintains the status snapshot and mirrors it into metrics. The poll
// goroutine writes; Status readers may be on any goroutine.
type tracker struct {
	metrics *metrics.Collector

	mu     sync.Mutex
	status Status
}

func newTracker(m *metrics.Collector) *tracker {
	return &tracker{metrics: m}
}

func (t *tracker) started(at time.Time) {
	t.mu.Lock()
	t.status.Running = true
	t.status.Mode = ModeWindow
	t.status.StartedAt = &at
	t.mu.Unlock()
	t.metrics.SetCursorMode(false)
}

func (t *tracker) stopped(err error) {
	t.mu.Lock()
	t.status.Running = false
	if err != nil {
		t.status.Error = err.Error()
	}
	t.mu.Unlock()
}

// ObserveFetch implements poller.Observer.
func (t *tracker) ObserveFetch(o poller.FetchOutcome) {
	t.metrics.ObserveFetch(o.State.Mode.String(), o.Events, o.Latency, o.Err)

	t.mu.Lock()
	t.status.Fetches++
	at := o.At
	t.status.LastFetchAt = &at
	t.status.Mode = Mode(o.Next.Mode)
	if o.Next.Mode == poller.ModeCursor {
		t.status.Cursor = o.Next.Cursor
		t.status.WindowStart = nil
	} else {
		start := o.Next.WindowStart
		t.status.WindowStart = &start
	}
	t.mu.Unlock()

	t.metrics.SetCursorMode(o.Next.Mode == poller.ModeCursor)
}

// ObserveBackoff implements poller.Observer.
func (t *tracker) ObserveBackoff(time.Duration) {
	t.metrics.BackedOff()

	t.mu.Lock()
	t.status.Backoffs++
	t.mu.Unlock()
}

func (t *tracker) eventDispatched() {
	t.metrics.EventDispatched()

	t.mu.Lock()
	t.status.EventsDispatched++
	t.mu.Unlock()
}

func (t *tracker) handlerFailed(kind string) {
	t.metrics.HandlerFailed(kind)

	t.mu.Lock()
	t.status.HandlerFailures++
	t.mu.Unlock()
}

func (t *tracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
