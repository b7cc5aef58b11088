package port

import "github.com/Wyydra/huddle/internal/core/domain"

// Transport is the relay's handle on one connected client. Send must not
// block on the network; a closed transport returns an error instead.
type Transport interface {
	Send(ev domain.Event) error
	Ping() error
	Close() error
}
