package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/badgesink"
	"github.com/jpalmerr/badgesink/internal/forward"
	"github.com/jpalmerr/badgesink/internal/store"
)

// newEventHandler records each event in st, then passes the stored copy to
// every forwarder. All forwarders are tried; their errors are joined.
func newEventHandler(ctx context.Context, st store.Store, fws []forward.Forwarder) badgesink.Handler {
	return func(ev badgesink.BadgeEvent) error {
		rec := st.Add(toStoreEvent(ev, time.Now()))

		var errs []error
		for _, f := range fws {
			if err := f.Forward(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("%s forwarder: %w", f.Name(), err))
			}
		}
		return errors.Join(errs...)
	}
}

func toStoreEvent(ev badgesink.BadgeEvent, receivedAt time.Time) store.Event {
	return store.Event{
		RiderID:     ev.RiderID,
		At:          ev.At,
		Longitude:   ev.Location.Longitude,
		Latitude:    ev.Location.Latitude,
		StopName:    ev.StopName,
		VehicleName: ev.VehicleName,
		RideName:    ev.RideName,
		ReceivedAt:  receivedAt,
	}
}
