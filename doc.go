// Package badgesink continuously pulls badge events (rider check-ins against
// stops, vehicles and rides) from a remote transit API and delivers each one
// to a local handler.
//
// The handler never deals with polling cadence, pagination or credentials:
// the sink exchanges the application id and secret for an access token, pages
// through the event stream and backs off when it has caught up.
//
// # Quick Start
//
//	sink, _ := badgesink.New(appID, secret, "https://api.example.com")
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	_ = sink.Start(ctx, func(ev badgesink.BadgeEvent) error {
//	    log.Printf("%s badged at %s on %s", ev.RiderID, ev.StopName, ev.VehicleName)
//	    return nil
//	})
//	<-sink.Done() // closed on cancellation or on a fetch failure
//
// # Polling
//
// The loop starts in window mode: each poll asks for every event between the
// moment the sink started and now. The first poll that returns events moves
// the sink to cursor mode for good; from then on each poll asks for the
// events after the cursor the server returned last.
//
// A poll that returns events is followed by the next poll immediately, so a
// backlog drains as fast as the server allows. A poll that returns nothing is
// followed by a fixed backoff (5 seconds, see [WithBackoff]).
//
// # Errors
//
// A handler error or panic is logged and counted; delivery continues with
// the next event. A failed poll ([*TransportError]) or the cancellation of
// the Start context ends the loop for good: [Sink.Done] is closed and
// [Sink.Err] reports the cause. There is no retry. The embedder decides
// whether to build and start a new Sink.
//
// # Architecture
//
// The package is built from internal packages (under internal/):
//
//   - internal/api: token and report requests over HTTP+JSON
//   - internal/poller: the window/cursor poll loop
//   - internal/metrics: Prometheus instruments (see [WithRegisterer])
//   - internal/store, internal/server, internal/forward: the pieces used by
//     the badgesink command to expose recent events and forward them to NATS
//     or a SQL database
package badgesink
