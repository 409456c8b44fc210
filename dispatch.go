package badgesink

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/jpalmerr/badgesink/internal/api"
)

// dispatcher delivers batches to the caller's handler. Handler failures stop
// at this boundary: they are logged and counted, and the next event is
// delivered regardless.
type dispatcher struct {
	handler Handler
	logger  *slog.Logger
	tracker *tracker
}

// dispatch delivers events one at a time, in order. It satisfies
// poller.DispatchFunc. The whole batch is delivered even if ctx is cancelled
// part-way through.
func (d *dispatcher) dispatch(_ context.Context, events []api.BadgeEvent) {
	for _, ev := range events {
		event := toPublicEvent(ev)
		if err := d.invokeSafe(event); err != nil {
			d.logger.Error("badge handler failed",
				"rider_id", event.RiderID,
				"at", event.At,
				"error", err.Error(),
			)
			d.tracker.handlerFailed("error")
		}
		d.tracker.eventDispatched()
	}
}

// invokeSafe calls the handler with panic recovery.
// A panic is logged with its stack trace and a correlation ID and is not
// returned as an error.
func (d *dispatcher) invokeSafe(event BadgeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			d.logger.Error("badge handler panicked",
				"correlation_id", correlationID,
				"rider_id", event.RiderID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			d.tracker.handlerFailed("panic")
			err = nil
		}
	}()
	return d.handler(event)
}
