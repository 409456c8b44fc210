package forward

import (
	"context"

	"github.com/jpalmerr/badgesink/internal/store"
)

// Forwarder delivers one event downstream.
type Forwarder interface {
	// Name identifies the forwarder in logs.
	Name() string

	// Forward sends ev. Implementations must be safe for sequential calls
	// from the poll goroutine; concurrent calls are not made.
	Forward(ctx context.Context, ev store.Event) error

	// Close releases connections. Forward must not be called afterwards.
	Close() error
}
