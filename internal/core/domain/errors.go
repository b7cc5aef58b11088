package domain

import (
	"errors"
	"fmt"
)

var (
	// Relay side.
	ErrProtocol          = errors.New("protocol error")
	ErrUnknownTarget     = errors.New("unknown target")
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// Session side.
	ErrInvalidDisplayName = errors.New("invalid display name")
	ErrAlreadyConnected   = errors.New("session already connected")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrNotConnected       = errors.New("not connected")
	ErrQueueFull          = errors.New("outbound queue full")

	// Room provider.
	ErrRoomCreateFailed = errors.New("room create failed")
	ErrRoomJoinFailed   = errors.New("room join failed")
)

// ProviderError is a request the media-routing provider rejected. Reason is
// whatever the provider said, passed through untouched.
type ProviderError struct {
	Op     string
	Room   string
	Status int
	Reason string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %q: %v: %s", e.Op, e.Room, e.Err, e.Reason)
	}
	return fmt.Sprintf("%s %q: %v: provider returned %d: %s", e.Op, e.Room, e.Err, e.Status, e.Reason)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
