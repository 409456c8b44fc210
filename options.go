package badgesink

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sinkConfig holds mutable state during Sink construction.
type sinkConfig struct {
	logger         *slog.Logger
	backoff        time.Duration
	httpClient     *http.Client
	requestTimeout time.Duration
	reuseToken     bool
	location       *time.Location
	registerer     prometheus.Registerer
}

// Option is a function that configures a [Sink] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, and [New] returns that error.
//
// Built-in options: [WithLogger], [WithBackoff], [WithHTTPClient],
// [WithRequestTimeout], [WithTokenReuse], [WithLocation], [WithRegisterer].
type Option func(*sinkConfig) error

// WithLogger sets a custom [slog.Logger] for the sink.
//
// If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	sink, err := badgesink.New(appID, secret, baseURL,
//	    badgesink.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *sinkConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithBackoff sets the pause after a poll that returned no events.
//
// After a poll that did return events the next poll is issued immediately,
// regardless of this setting. Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithBackoff(d time.Duration) Option {
	return func(cfg *sinkConfig) error {
		if d <= 0 {
			return errors.New("backoff must be positive")
		}
		cfg.backoff = d
		return nil
	}
}

// WithHTTPClient sets the [http.Client] used for token and report requests.
//
// Use it to plug in a proxy, custom TLS settings or instrumentation. If not
// specified, a client with a small keep-alive pool is created.
//
// Returns an error if the client is nil.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *sinkConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithRequestTimeout bounds each individual request to the badge API.
//
// A request that exceeds it fails with a [*TransportError], which ends the
// poll loop. Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *sinkConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithTokenReuse keeps the access token between polls.
//
// By default a fresh token is requested before every poll. With token reuse
// the token is kept until the report endpoint answers 401, at which point a
// new token is requested and the poll is repeated once.
func WithTokenReuse() Option {
	return func(cfg *sinkConfig) error {
		cfg.reuseToken = true
		return nil
	}
}

// WithLocation sets the time zone for window bounds sent to the API and for
// event timestamps that carry no zone.
//
// Defaults to [time.Local]. Returns an error if loc is nil.
func WithLocation(loc *time.Location) Option {
	return func(cfg *sinkConfig) error {
		if loc == nil {
			return errors.New("location cannot be nil")
		}
		cfg.location = loc
		return nil
	}
}

// WithRegisterer registers the sink's Prometheus metrics with reg.
//
// Metric names are prefixed with "badgesink_". Without this option no
// metrics are collected.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	sink, err := badgesink.New(appID, secret, baseURL,
//	    badgesink.WithRegisterer(reg),
//	)
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Returns an error if reg is nil.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *sinkConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}
