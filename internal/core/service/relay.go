package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/Wyydra/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatGrace    = 10 * time.Second
)

type RelayConfig struct {
	// HeartbeatInterval is how often every connection is pinged.
	HeartbeatInterval time.Duration
	// HeartbeatGrace is how long past one interval a connection may stay
	// silent before it is removed.
	HeartbeatGrace time.Duration
	Now            func() time.Time
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatGrace <= 0 {
		c.HeartbeatGrace = DefaultHeartbeatGrace
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Router admits relay connections, routes signals between them by identity
// and removes connections that stop answering heartbeats.
type Router struct {
	cfg      RelayConfig
	presence port.PresenceRepository

	// mu guards transports and serializes presence mutations with the
	// broadcasts they cause, so every transport sees the same event order.
	mu         sync.RWMutex
	transports map[domain.ConnID]port.Transport

	quit     chan struct{}
	stopOnce sync.Once
}

func NewRouter(presence port.PresenceRepository, cfg RelayConfig) *Router {
	return &Router{
		cfg:        cfg.withDefaults(),
		presence:   presence,
		transports: make(map[domain.ConnID]port.Transport),
		quit:       make(chan struct{}),
	}
}

// Connect admits a new transport and broadcasts the full presence snapshot
// to every connection, the new one included.
func (r *Router) Connect(t port.Transport, displayName string) (domain.ConnID, error) {
	id := domain.NewConnID()
	name := domain.SanitizeDisplayName(displayName)
	if name == "" {
		name = domain.DefaultDisplayName(id)
	}
	conn := domain.Connection{ID: id, DisplayName: name, LastSeen: r.cfg.Now()}

	r.mu.Lock()
	if err := r.presence.Admit(conn); err != nil {
		r.mu.Unlock()
		log.Error().Err(err).Str("conn_id", id.String()).Msg("Presence table rejected connection")
		return domain.ConnID{}, err
	}
	r.transports[id] = t
	r.send(id, t, domain.NewWelcomeEvent(conn.Peer()))
	r.broadcastLocked(domain.NewPresenceEvent(r.peersLocked()))
	count := len(r.transports)
	r.mu.Unlock()

	metrics.ConnectedClients.Set(float64(count))
	log.Info().Str("conn_id", id.String()).Str("display_name", name).Int("count", count).Msg("Client admitted")
	return id, nil
}

// Message forwards sig to its target with the sender overwritten. Malformed
// signals and unknown targets are dropped; the sender is never notified.
func (r *Router) Message(sender domain.ConnID, sig domain.Signal) error {
	l := log.With().Str("conn_id", sender.String()).Str("kind", string(sig.Kind)).Logger()

	if err := sig.Validate(); err != nil {
		metrics.SignalsDropped.WithLabelValues("protocol").Inc()
		l.Warn().Err(err).Msg("Dropping malformed signal")
		return err
	}
	sig.Sender = sender

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.transports[sender]; !ok {
		metrics.SignalsDropped.WithLabelValues("unknown_sender").Inc()
		l.Warn().Msg("Dropping signal from connection that is not admitted")
		return fmt.Errorf("sender %s: %w", sender, domain.ErrUnknownIdentity)
	}

	target, ok := r.transports[sig.Target]
	if !ok {
		metrics.SignalsDropped.WithLabelValues("unknown_target").Inc()
		l.Debug().Str("target", sig.Target.String()).Msg("Dropping signal for unknown target")
		return fmt.Errorf("target %s: %w", sig.Target, domain.ErrUnknownTarget)
	}

	if err := target.Send(domain.NewSignalEvent(sig)); err != nil {
		metrics.SignalsDropped.WithLabelValues("send_failed").Inc()
		l.Warn().Err(err).Str("target", sig.Target.String()).Msg("Failed to forward signal")
		return fmt.Errorf("forward %s: %w", sig.Kind, err)
	}

	metrics.SignalsRouted.WithLabelValues(string(sig.Kind)).Inc()
	l.Debug().Str("target", sig.Target.String()).Msg("Signal forwarded")
	return nil
}

// Touch records a heartbeat reply from id. A live transport without a
// presence entry breaks the table invariant and is removed.
func (r *Router) Touch(id domain.ConnID) error {
	if err := r.presence.Touch(id, r.cfg.Now()); err != nil {
		log.Error().Err(err).Str("conn_id", id.String()).Msg("Heartbeat from connection missing in presence table")
		if errors.Is(err, domain.ErrUnknownIdentity) {
			r.disconnect(id, "presence invariant")
		}
		return err
	}
	return nil
}

// Disconnect removes id, closes its transport and tells every remaining
// connection. Calling it for an already removed id does nothing.
func (r *Router) Disconnect(id domain.ConnID) {
	r.disconnect(id, "closed")
}

func (r *Router) disconnect(id domain.ConnID, reason string) bool {
	r.mu.Lock()
	t, ok := r.transports[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.transports, id)
	if !r.presence.Remove(id) {
		log.Error().Str("conn_id", id.String()).Msg("Transport had no presence entry")
	}
	r.broadcastLocked(domain.NewPeerRemovedEvent(id))
	count := len(r.transports)
	r.mu.Unlock()

	if err := t.Close(); err != nil {
		log.Debug().Err(err).Str("conn_id", id.String()).Msg("Error closing transport")
	}
	metrics.ConnectedClients.Set(float64(count))
	log.Info().Str("conn_id", id.String()).Str("reason", reason).Int("count", count).Msg("Client removed")
	return true
}

// Presence returns the public view of every admitted connection.
func (r *Router) Presence() []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peersLocked()
}

func (r *Router) Count() int {
	return r.presence.Len()
}

// Run drives the heartbeat until Stop is called.
func (r *Router) Run() {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			r.sweep(r.cfg.Now())
		}
	}
}

// Stop ends the heartbeat and closes every transport.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)

		r.mu.Lock()
		transports := r.transports
		r.transports = make(map[domain.ConnID]port.Transport)
		for id := range transports {
			r.presence.Remove(id)
		}
		r.mu.Unlock()

		log.Info().Int("count", len(transports)).Msg("Stopping relay. Disconnecting all clients.")
		for id, t := range transports {
			if err := t.Close(); err != nil {
				log.Error().Err(err).Str("conn_id", id.String()).Msg("Error closing client connection")
			}
		}
		metrics.ConnectedClients.Set(0)
	})
}

// sweep removes connections silent for longer than one interval plus the
// grace period and pings the rest.
func (r *Router) sweep(now time.Time) {
	limit := r.cfg.HeartbeatInterval + r.cfg.HeartbeatGrace

	for _, c := range r.presence.Snapshot() {
		if now.Sub(c.LastSeen) > limit {
			if r.disconnect(c.ID, "heartbeat timeout") {
				metrics.HeartbeatTimeouts.Inc()
			}
			continue
		}

		r.mu.RLock()
		t, ok := r.transports[c.ID]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if err := t.Ping(); err != nil {
			log.Debug().Err(err).Str("conn_id", c.ID.String()).Msg("Ping failed")
		}
	}
}

func (r *Router) peersLocked() []domain.Peer {
	conns := r.presence.Snapshot()
	peers := make([]domain.Peer, len(conns))
	for i, c := range conns {
		peers[i] = c.Peer()
	}
	return peers
}

func (r *Router) broadcastLocked(ev domain.Event) {
	for id, t := range r.transports {
		r.send(id, t, ev)
	}
}

// send never fails the caller: a closed or saturated transport only loses
// this event.
func (r *Router) send(id domain.ConnID, t port.Transport, ev domain.Event) {
	if err := t.Send(ev); err != nil {
		log.Debug().Err(err).Str("conn_id", id.String()).Str("event", string(ev.Kind)).Msg("Dropping event for client")
	}
}
