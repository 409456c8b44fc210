// Package poller runs the badge polling loop for badgesink.
//
// This package is internal to badgesink. [Controller] is a two-state machine:
//
//   - window mode: the initial state. Every fetch asks for the events between
//     the instant the loop started and now. The start is never advanced.
//   - cursor mode: entered on the first non-empty batch and never left. Every
//     fetch asks for the events after the most recent cursor.
//
// A non-empty batch is followed by the next fetch immediately, so a backlog
// drains as fast as the server allows. An empty batch leaves the state
// untouched and is followed by a fixed backoff.
//
// Fetch errors and context cancellation end the loop; there is no retry.
// Users of the badgesink library should not need to interact with this
// package directly.
package poller
