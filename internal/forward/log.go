package forward

import (
	"context"
	"log/slog"

	"github.com/jpalmerr/badgesink/internal/store"
)

// Log writes every event to a logger at info level.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a [Log] forwarder. A nil logger selects slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Forward(ctx context.Context, ev store.Event) error {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "badge event",
		slog.Uint64("seq", ev.Seq),
		slog.String("rider_id", ev.RiderID),
		slog.Time("at", ev.At),
		slog.Float64("longitude", ev.Longitude),
		slog.Float64("latitude", ev.Latitude),
		slog.String("stop", ev.StopName),
		slog.String("vehicle", ev.VehicleName),
		slog.String("ride", ev.RideName),
	)
	return nil
}

func (l *Log) Close() error { return nil }
