// Package forward sends delivered badge events to downstream systems.
//
// Three forwarders are provided, each satisfying [Forwarder]:
//
//   - [Log]: writes one structured log record per event
//   - [NATS]: publishes each event as JSON on "<prefix>.<ride>"
//   - [SQL]: appends each event to a badge_events table in SQLite or
//     PostgreSQL
//
// The badgesink command builds the forwarders named in its configuration and
// calls them from the sink's handler. A failing forwarder does not stop the
// others; the sink logs and counts the joined error.
package forward
