package badgesink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jpalmerr/badgesink/internal/api"
	"github.com/jpalmerr/badgesink/internal/metrics"
	"github.com/jpalmerr/badgesink/internal/poller"
)

const (
	defaultBackoff        = poller.DefaultBackoff
	defaultRequestTimeout = 30 * time.Second
)

// Sink pulls badge events from the badge API and hands each one to a
// [Handler].
//
// A Sink is created with [New] and started once with [Sink.Start]. The poll
// loop runs on its own goroutine until its context is cancelled or a fetch
// fails; fetch failures are not retried. The embedder observes the end of the
// loop through [Sink.Done] and decides whether to build a new Sink.
//
// The typical lifecycle is:
//
//	sink, err := badgesink.New(appID, secret, "https://api.example.com")
//	if err != nil {
//	    slog.Error("failed to create sink", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	_ = sink.Start(ctx, func(ev badgesink.BadgeEvent) error {
//	    fmt.Println(ev)
//	    return nil
//	})
//	<-sink.Done()
type Sink struct {
	backoff time.Duration
	logger  *slog.Logger
	client  *api.Client
	tracker *tracker

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
}

// New creates a [Sink] for the badge API at baseURL, authenticating with
// appID and secret.
//
// Options have sensible defaults:
//   - Backoff after an empty poll: 5 seconds
//   - Request timeout: 30 seconds
//   - A fresh access token for every poll
//   - Timestamps in time.Local
//
// Returns an error if a credential is empty, if baseURL is not an absolute
// http(s) URL, or if any option is invalid.
func New(appID, secret, baseURL string, opts ...Option) (*Sink, error) {
	if appID == "" {
		return nil, errors.New("app id is required")
	}
	if secret == "" {
		return nil, errors.New("secret is required")
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}

	cfg := &sinkConfig{
		backoff:        defaultBackoff,
		requestTimeout: defaultRequestTimeout,
		location:       time.Local,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var collector *metrics.Collector
	if cfg.registerer != nil {
		c, err := metrics.NewCollector(cfg.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		collector = c
	}

	client := api.NewClient(api.Config{
		BaseURL:        baseURL,
		AppID:          appID,
		Secret:         secret,
		HTTPClient:     cfg.httpClient,
		Timeout:        cfg.requestTimeout,
		Location:       cfg.location,
		ReuseToken:     cfg.reuseToken,
		OnTokenRequest: collector.TokenRequested,
	})

	return &Sink{
		backoff: cfg.backoff,
		logger:  logger,
		client:  client,
		tracker: newTracker(collector),
		done:    make(chan struct{}),
	}, nil
}

func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return errors.New("base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("base url must include a host")
	}
	return nil
}

// Start launches the poll loop in a background goroutine and returns
// immediately.
//
// Every event is passed to handler, one at a time and in server order. The
// loop stops when ctx is cancelled or a fetch fails; [Sink.Done] is closed
// at that point and [Sink.Err] reports the cause. If ctx is nil,
// context.Background() is used.
//
// Start may be called once. Later calls return [ErrAlreadyStarted]. A nil
// handler is rejected.
func (s *Sink) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	d := &dispatcher{handler: handler, logger: s.logger, tracker: s.tracker}
	ctrl := poller.NewController(poller.Config{
		Fetcher:  s.client,
		Dispatch: d.dispatch,
		Backoff:  s.backoff,
		Observer: s.tracker,
		Logger:   s.logger,
	})

	s.tracker.started(time.Now())

	go func() {
		defer close(s.done)
		err := ctrl.Run(ctx)
		s.finish(err)
	}()
	return nil
}

// finish records the loop's terminal error and releases idle connections.
func (s *Sink) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.tracker.stopped(err)
	s.client.Close()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Info("badge polling stopped", "reason", err.Error())
		return
	}
	s.logger.Error("badge polling failed", "error", err)
}

// Done returns a channel that is closed when the poll loop has ended.
// It is never closed if [Sink.Start] was not called.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the poll loop ended: the context's error after
// cancellation, or the fetch error. Nil while the loop is running or before
// Start.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the poll loop ends or ctx is done, and returns
// [Sink.Err] or the context's error respectively.
func (s *Sink) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the sink. Safe for concurrent use.
func (s *Sink) Status() Status {
	return s.tracker.snapshot()
}

// Fetch performs a single poll outside the loop and returns the batch.
//
// Exactly one of q.Cursor and q.Since must be set, otherwise Fetch fails with
// [ErrInvalidArgument] without touching the network. Other failures are
// [*TransportError] values. Fetch does not affect a running loop.
func (s *Sink) Fetch(ctx context.Context, q Query) (Report, error) {
	report, err := s.client.FetchReport(ctx, q.toRequest())
	if err != nil {
		return Report{}, err
	}
	return toPublicReport(report), nil
}
