package port

import (
	"context"

	"github.com/Wyydra/huddle/internal/core/domain"
)

// RelayDialer opens client connections to the relay.
type RelayDialer interface {
	Dial(ctx context.Context, displayName string) (RelayConn, error)
}

// RelayConn is the client end of a relay connection. Receive is called from
// a single goroutine and returns events in the order the relay sent them.
type RelayConn interface {
	Send(ev domain.Event) error
	Receive() (domain.Event, error)
	Close() error
}
