// Package api is the HTTP client for the remote badge API.
//
// This package is internal to badgesink and covers the two outbound calls the
// poll loop needs:
//
//   - [TokenSource]: exchanges an application id and secret for a bearer token
//     via POST /v1/accessToken
//   - [Client.FetchReport]: reads one batch of badge events via
//     GET /v1/badgeReport, either after an opaque cursor or inside a time window
//
// Failures are reported as [*TransportError]; a malformed [ReportRequest]
// fails with [ErrInvalidArgument] before any network activity.
//
// Users of the badgesink library should not need to interact with this
// package directly.
package api
