package badgesink

import (
	"errors"

	"github.com/jpalmerr/badgesink/internal/api"
)

// ErrInvalidArgument is returned by [Sink.Fetch] when a [Query] does not set
// exactly one of a cursor or a window start. Test with [errors.Is].
var ErrInvalidArgument = api.ErrInvalidArgument

// ErrAlreadyStarted is returned by a second call to [Sink.Start].
var ErrAlreadyStarted = errors.New("sink already started")

// TransportError reports a failed call to the badge API: a network failure,
// a non-2xx response, or an undecodable body. Test with [errors.As].
//
// A TransportError raised inside the poll loop ends the loop; it is available
// from [Sink.Err] once [Sink.Done] is closed.
type TransportError = api.TransportError
