// Package server provides the HTTP API of the badgesink command.
//
// The server exposes the state of a running sink and the events it has
// delivered:
//
//   - Health: "/healthz" answers 200 while the poll loop runs, 503 after
//   - Status: JSON snapshot of the sink at "/api/status"
//   - Events: the most recent delivered events at "/api/events"
//   - Server-Sent Events: live event stream at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
