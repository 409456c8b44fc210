package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidArgument is returned when a [ReportRequest] does not carry exactly
// one of a cursor or a window start.
var ErrInvalidArgument = errors.New("invalid argument")

// errMissingCursor marks a non-empty report that came back without a cursor.
var errMissingCursor = errors.New("non-empty report has no cursor")

// TransportError describes a failed call to the badge API: a network failure,
// a non-2xx response, or a body that could not be decoded.
type TransportError struct {
	// Op names the call that failed ("access token" or "badge report").
	Op string

	// URL is the request URL, without credentials.
	URL string

	// StatusCode is the HTTP status returned by the server.
	// Zero if the request failed before a response was received.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// isUnauthorized reports whether err is a 401 from the badge API.
func isUnauthorized(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusUnauthorized
}
