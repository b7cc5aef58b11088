package domain

import (
	"github.com/google/uuid"
)

// ConnID identifies one relay connection. It is generated when the
// transport is accepted and never reused while the process runs.
type ConnID uuid.UUID

func NewConnID() ConnID {
	return ConnID(uuid.New())
}

func ParseConnID(s string) (ConnID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ConnID{}, err
	}
	return ConnID(id), nil
}

func (id ConnID) String() string {
	return uuid.UUID(id).String()
}

func (id ConnID) IsZero() bool {
	return id == ConnID{}
}

// Short is the first block of the id, enough to tell peers apart in logs.
func (id ConnID) Short() string {
	return id.String()[:8]
}

func (id ConnID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ConnID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ConnID(parsed)
	return nil
}
