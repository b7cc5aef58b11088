package domain

import (
	"strings"
	"time"
	"unicode"
)

const maxDisplayNameRunes = 64

// Connection is the relay's record of one admitted transport.
type Connection struct {
	ID          ConnID
	DisplayName string
	LastSeen    time.Time
}

func (c Connection) Peer() Peer {
	return Peer{ID: c.ID, DisplayName: c.DisplayName}
}

// DefaultDisplayName is the placeholder given to clients that connect
// without a name.
func DefaultDisplayName(id ConnID) string {
	return "guest-" + id.Short()
}

// SanitizeDisplayName trims the name, strips control characters and caps
// its length. The result may be empty.
func SanitizeDisplayName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if r := []rune(name); len(r) > maxDisplayNameRunes {
		name = strings.TrimSpace(string(r[:maxDisplayNameRunes]))
	}
	return name
}
