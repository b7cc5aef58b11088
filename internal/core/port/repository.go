package port

import (
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

// PresenceRepository holds the connections currently admitted to the relay.
// Every method is atomic with respect to the others.
type PresenceRepository interface {
	Admit(conn domain.Connection) error
	Remove(id domain.ConnID) bool
	Touch(id domain.ConnID, at time.Time) error
	Snapshot() []domain.Connection
	Len() int
}
