package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type presenceEntry struct {
	conn domain.Connection
	seq  uint64
}

// PresenceRepository implements port.PresenceRepository with a
// mutex-guarded map.
type PresenceRepository struct {
	mu      sync.Mutex
	entries map[domain.ConnID]*presenceEntry
	seq     uint64
}

func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{
		entries: make(map[domain.ConnID]*presenceEntry),
	}
}

func (r *PresenceRepository) Admit(conn domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[conn.ID]; ok {
		return fmt.Errorf("admit %s: %w", conn.ID, domain.ErrDuplicateIdentity)
	}
	r.seq++
	r.entries[conn.ID] = &presenceEntry{conn: conn, seq: r.seq}
	return nil
}

func (r *PresenceRepository) Remove(id domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

func (r *PresenceRepository) Touch(id domain.ConnID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("touch %s: %w", id, domain.ErrUnknownIdentity)
	}
	e.conn.LastSeen = at
	return nil
}

// Snapshot returns a copy of every entry in admission order.
func (r *PresenceRepository) Snapshot() []domain.Connection {
	r.mu.Lock()
	entries := make([]*presenceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	out := make([]domain.Connection, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for i, e := range entries {
		out[i] = e.conn
	}
	r.mu.Unlock()
	return out
}

func (r *PresenceRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
