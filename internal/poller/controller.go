package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/badgesink/internal/api"
)

// DefaultBackoff is the pause after a fetch that returned no events.
const DefaultBackoff = 5 * time.Second

// Mode is the fetch mode of the loop.
type Mode string

const (
	// ModeWindow fetches by time window from the loop's start time.
	ModeWindow Mode = "window"

	// ModeCursor fetches the events after the last cursor.
	ModeCursor Mode = "cursor"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// State is the loop's position: a window start in [ModeWindow], or a cursor
// in [ModeCursor].
type State struct {
	Mode        Mode
	WindowStart time.Time
	Cursor      string
}

// request returns the fetch request for the state.
func (s State) request() api.ReportRequest {
	if s.Mode == ModeCursor {
		return api.CursorRequest(s.Cursor)
	}
	return api.WindowRequest(s.WindowStart)
}

// next returns the state after a batch. Empty batches keep the state as is;
// any non-empty batch moves to (or stays in) cursor mode with its cursor.
func (s State) next(report api.Report) State {
	if len(report.Events) == 0 {
		return s
	}
	return State{Mode: ModeCursor, Cursor: report.Cursor}
}

// Fetcher reads one batch of badge events.
type Fetcher interface {
	FetchReport(ctx context.Context, req api.ReportRequest) (api.Report, error)
}

// DispatchFunc delivers a batch to the handler. It must not fail: errors
// raised by the handler are the dispatcher's to absorb.
type DispatchFunc func(ctx context.Context, events []api.BadgeEvent)

// FetchOutcome describes one completed fetch.
type FetchOutcome struct {
	// State is the state the fetch was issued from.
	State State

	// Next is the state after the batch was processed. Equal to State when
	// the fetch failed or the batch was empty.
	Next State

	// Events is the number of events in the batch.
	Events int

	// Latency is the time taken by the fetch, token request included.
	Latency time.Duration

	// At is when the fetch completed.
	At time.Time

	// Err is the fetch error, if any. A non-nil Err ends the loop.
	Err error
}

// Observer is notified of loop activity. Calls are made from the loop's
// goroutine; implementations must not block.
type Observer interface {
	ObserveFetch(outcome FetchOutcome)
	ObserveBackoff(d time.Duration)
}

// Config holds the collaborators of a [Controller].
type Config struct {
	// Fetcher issues the report requests. Required.
	Fetcher Fetcher

	// Dispatch delivers each batch. Required.
	Dispatch DispatchFunc

	// Backoff is the pause after an empty batch. Zero means [DefaultBackoff].
	Backoff time.Duration

	// Observer receives fetch and backoff notifications. Optional.
	Observer Observer

	// Logger for loop events. Nil means slog.Default().
	Logger *slog.Logger

	// Now returns the current instant, used once as the window start.
	// Nil means time.Now.
	Now func() time.Time
}

// Controller runs the fetch → dispatch → backoff loop.
//
// A Controller is single-use: call [Controller.Run] once.
type Controller struct {
	fetcher  Fetcher
	dispatch DispatchFunc
	backoff  time.Duration
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewController creates a [Controller] from cfg.
func NewController(cfg Config) *Controller {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		fetcher:  cfg.Fetcher,
		dispatch: cfg.Dispatch,
		backoff:  backoff,
		observer: cfg.Observer,
		logger:   logger,
		now:      now,
	}
}

// Run polls until a fetch fails or ctx is cancelled, and returns the cause.
//
// The loop starts in window mode with the current instant as window start.
// Batches are processed strictly in sequence: batch N+1 is not requested
// until every event of batch N has been dispatched. Run never returns nil.
func (c *Controller) Run(ctx context.Context) error {
	state := State{Mode: ModeWindow, WindowStart: c.now()}
	c.logger.Info("badge polling started",
		"mode", state.Mode.String(),
		"window_start", state.WindowStart,
		"backoff", c.backoff.String(),
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		report, err := c.fetcher.FetchReport(ctx, state.request())
		outcome := FetchOutcome{
			State:   state,
			Next:    state,
			Events:  len(report.Events),
			Latency: time.Since(start),
			At:      time.Now(),
			Err:     err,
		}
		if err != nil {
			c.notifyFetch(outcome)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("fetch badge report (%s mode): %w", state.Mode, err)
		}

		c.dispatch(ctx, report.Events)

		next := state.next(report)
		outcome.Next = next
		c.notifyFetch(outcome)

		if state.Mode == ModeWindow && next.Mode == ModeCursor {
			c.logger.Info("switched to cursor mode", "cursor", next.Cursor, "event_count", len(report.Events))
		}
		state = next

		if len(report.Events) > 0 {
			c.logger.Debug("batch dispatched", "event_count", len(report.Events), "cursor", state.Cursor)
			continue
		}

		c.logger.Debug("no new badge events, backing off", "mode", state.Mode.String(), "backoff", c.backoff.String())
		if c.observer != nil {
			c.observer.ObserveBackoff(c.backoff)
		}
		if err := sleep(ctx, c.backoff); err != nil {
			return err
		}
	}
}

func (c *Controller) notifyFetch(outcome FetchOutcome) {
	if c.observer != nil {
		c.observer.ObserveFetch(outcome)
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
