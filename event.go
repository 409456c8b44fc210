package badgesink

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/badgesink/internal/api"
)

// Location is a longitude/latitude pair.
type Location struct {
	Longitude float64 `json:"lg"`
	Latitude  float64 `json:"lt"`
}

// BadgeEvent is one rider check-in against a stop, vehicle or ride.
//
// BadgeEvent is a value type; handlers receive their own copy.
type BadgeEvent struct {
	// RiderID identifies the rider who badged.
	RiderID string `json:"riderId"`

	// At is when the badge happened.
	At time.Time `json:"at"`

	// Location is where the badge happened.
	Location Location `json:"location"`

	// StopName, VehicleName and RideName are optional display names.
	StopName    string `json:"stopName,omitempty"`
	VehicleName string `json:"vehicleName,omitempty"`
	RideName    string `json:"rideName,omitempty"`
}

// String implements fmt.Stringer for log output.
func (e BadgeEvent) String() string {
	return fmt.Sprintf("BadgeEvent{rider=%q at=%s location=(%g,%g) stop=%q vehicle=%q ride=%q}",
		e.RiderID, e.At.Format(time.RFC3339Nano), e.Location.Longitude, e.Location.Latitude,
		e.StopName, e.VehicleName, e.RideName)
}

// Report is one batch of events and the cursor positioned after it.
type Report struct {
	Events []BadgeEvent `json:"badgeEvents"`
	Cursor string       `json:"cursor"`
}

// Query selects what [Sink.Fetch] asks for. Exactly one of Cursor and Since
// must be set; see [CursorQuery] and [WindowQuery].
type Query struct {
	// Cursor requests the events strictly after this position.
	Cursor *string

	// Since requests the events between this instant and now.
	Since *time.Time
}

// CursorQuery returns a [Query] for the events after cursor.
func CursorQuery(cursor string) Query {
	return Query{Cursor: &cursor}
}

// WindowQuery returns a [Query] for the events from since until now.
func WindowQuery(since time.Time) Query {
	return Query{Since: &since}
}

// Handler receives badge events from a running [Sink], one at a time and in
// server order.
//
// A returned error, or a panic, is logged and counted; it never stops the
// sink and does not prevent delivery of later events. Handlers run on the
// poll goroutine, so a slow handler delays the next fetch.
type Handler func(event BadgeEvent) error

// MultiHandler returns a [Handler] that calls every non-nil handler in order
// for each event. All handlers are called even if one fails; their errors are
// joined. A panic in one handler is not recovered here and still reaches the
// sink's recovery boundary.
func MultiHandler(handlers ...Handler) Handler {
	hs := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return func(event BadgeEvent) error {
		var errs []error
		for _, h := range hs {
			if err := h(event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func toPublicEvent(ev api.BadgeEvent) BadgeEvent {
	return BadgeEvent{
		RiderID:     ev.RiderID,
		At:          ev.At,
		Location:    Location{Longitude: ev.Location.Longitude, Latitude: ev.Location.Latitude},
		StopName:    ev.StopName,
		VehicleName: ev.VehicleName,
		RideName:    ev.RideName,
	}
}

func toPublicReport(r api.Report) Report {
	events := make([]BadgeEvent, len(r.Events))
	for i, ev := range r.Events {
		events[i] = toPublicEvent(ev)
	}
	return Report{Events: events, Cursor: r.Cursor}
}

func (q Query) toRequest() api.ReportRequest {
	return api.ReportRequest{Cursor: q.Cursor, Since: q.Since}
}
