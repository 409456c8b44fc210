package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/badgesink"
	"github.com/jpalmerr/badgesink/internal/forward"
)

// BuildOptions converts parsed configuration into sink options.
//
// logger and reg are optional; when set they are passed through as
// [badgesink.WithLogger] and [badgesink.WithRegisterer].
func BuildOptions(cfg *Config, logger *slog.Logger, reg prometheus.Registerer) ([]badgesink.Option, error) {
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}

	opts := []badgesink.Option{badgesink.WithLocation(loc)}

	if cfg.Backoff != 0 {
		opts = append(opts, badgesink.WithBackoff(cfg.Backoff.Duration()))
	}
	if cfg.RequestTimeout != 0 {
		opts = append(opts, badgesink.WithRequestTimeout(cfg.RequestTimeout.Duration()))
	}
	if cfg.ReuseToken {
		opts = append(opts, badgesink.WithTokenReuse())
	}
	if logger != nil {
		opts = append(opts, badgesink.WithLogger(logger))
	}
	if reg != nil {
		opts = append(opts, badgesink.WithRegisterer(reg))
	}

	return opts, nil
}

// BuildSink creates the sink described by cfg.
func BuildSink(cfg *Config, logger *slog.Logger, reg prometheus.Registerer) (*badgesink.Sink, error) {
	opts, err := BuildOptions(cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	return badgesink.New(cfg.AppID, cfg.Secret, cfg.BaseURL, opts...)
}

// BuildForwarders opens the forwarders enabled in cfg, in the order log,
// NATS, SQL. If one fails to open, those already opened are closed.
func BuildForwarders(ctx context.Context, cfg *Config, logger *slog.Logger) ([]forward.Forwarder, error) {
	var fws []forward.Forwarder

	if cfg.Forward.Log {
		fws = append(fws, forward.NewLog(logger))
	}

	if nc := cfg.Forward.NATS; nc != nil {
		n, err := forward.NewNATS(nc.URL, nc.SubjectPrefix, logger)
		if err != nil {
			return nil, errors.Join(err, CloseForwarders(fws))
		}
		fws = append(fws, n)
	}

	if sc := cfg.Forward.SQL; sc != nil {
		s, err := forward.OpenSQL(ctx, sc.Driver, sc.DSN)
		if err != nil {
			return nil, errors.Join(err, CloseForwarders(fws))
		}
		fws = append(fws, s)
	}

	return fws, nil
}

// CloseForwarders closes every forwarder and joins their errors.
func CloseForwarders(fws []forward.Forwarder) error {
	var errs []error
	for _, f := range fws {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s forwarder: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}
