package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/rs/zerolog/log"
)

const DefaultQueueLimit = 64

type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	}
	return fmt.Sprintf("SessionStatus(%d)", int(s))
}

// Observer receives relay events. Calls come from one goroutine, in the
// order the relay sent the events, and may call back into the Session.
type Observer interface {
	OnPresence(peers []domain.Peer)
	OnPeerRemoved(id domain.ConnID)
	OnSignal(sig domain.Signal)
	// OnClosed reports a transport loss. It is not called after Disconnect.
	OnClosed(err error)
}

// ObserverFuncs is an Observer built from optional functions.
type ObserverFuncs struct {
	Presence    func(peers []domain.Peer)
	PeerRemoved func(id domain.ConnID)
	Signal      func(sig domain.Signal)
	Closed      func(err error)
}

func (f ObserverFuncs) OnPresence(peers []domain.Peer) {
	if f.Presence != nil {
		f.Presence(peers)
	}
}

func (f ObserverFuncs) OnPeerRemoved(id domain.ConnID) {
	if f.PeerRemoved != nil {
		f.PeerRemoved(id)
	}
}

func (f ObserverFuncs) OnSignal(sig domain.Signal) {
	if f.Signal != nil {
		f.Signal(sig)
	}
}

func (f ObserverFuncs) OnClosed(err error) {
	if f.Closed != nil {
		f.Closed(err)
	}
}

type SessionConfig struct {
	// QueueLimit bounds the signals buffered while connecting.
	QueueLimit int
}

type observerEntry struct {
	id  uint64
	obs Observer
}

// Session owns one logical relay connection on the client side.
type Session struct {
	dialer     port.RelayDialer
	queueLimit int

	mu          sync.Mutex
	status      SessionStatus
	gen         uint64 // bumped whenever the current connection is abandoned
	conn        port.RelayConn
	cancelDial  context.CancelFunc
	name        string
	self        domain.Peer
	presence    []domain.Peer
	queue       []domain.Signal
	observers   []observerEntry
	nextObs     uint64
	retryID     uint64
	cancelRetry context.CancelFunc
}

func NewSession(dialer port.RelayDialer, cfg SessionConfig) *Session {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	return &Session{
		dialer:     dialer,
		queueLimit: cfg.QueueLimit,
	}
}

// Connect dials the relay. Signals sent while dialing are queued and
// flushed in order once connected. A failed dial is not retried.
func (s *Session) Connect(ctx context.Context, displayName string) error {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return domain.ErrInvalidDisplayName
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return domain.ErrAlreadyConnected
	}
	s.gen++
	gen := s.gen
	s.status = StatusConnecting
	s.name = name
	s.queue = nil
	s.cancelDial = cancel
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, name)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("%w: disconnected while dialing", domain.ErrConnectionFailed)
	}
	s.cancelDial = nil
	if err != nil {
		s.resetLocked()
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
	}

	for _, sig := range s.queue {
		if err := conn.Send(domain.NewSignalEvent(sig)); err != nil {
			s.gen++
			s.resetLocked()
			s.mu.Unlock()
			_ = conn.Close()
			return fmt.Errorf("%w: flushing queued %s: %w", domain.ErrConnectionFailed, sig.Kind, err)
		}
	}
	s.queue = nil
	s.conn = conn
	s.status = StatusConnected
	s.mu.Unlock()

	log.Debug().Str("display_name", name).Msg("Connected to relay")
	go s.readLoop(gen, conn)
	return nil
}

// ConnectRetry calls Connect until it succeeds, ctx ends or Disconnect is
// called, sleeping between attempts according to b.
func (s *Session) ConnectRetry(ctx context.Context, displayName string, b Backoff) error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancelRetry != nil {
		s.cancelRetry()
	}
	s.retryID++
	id := s.retryID
	s.cancelRetry = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.retryID == id {
			s.cancelRetry = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	retry := b.Start()
	for attempt := 1; ; attempt++ {
		err := s.Connect(ctx, displayName)
		if err == nil || !errors.Is(err, domain.ErrConnectionFailed) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrConnectionFailed, ctx.Err())
		}

		wait := retry.Next()
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Relay connection failed")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", domain.ErrConnectionFailed, ctx.Err())
		case <-timer.C:
		}
	}
}

// Send transmits sig, queues it while connecting, or fails with
// ErrNotConnected.
func (s *Session) Send(sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusConnected:
		if err := s.conn.Send(domain.NewSignalEvent(sig)); err != nil {
			return fmt.Errorf("send %s: %w", sig.Kind, err)
		}
		return nil
	case StatusConnecting:
		if len(s.queue) >= s.queueLimit {
			return domain.ErrQueueFull
		}
		s.queue = append(s.queue, sig)
		return nil
	default:
		return domain.ErrNotConnected
	}
}

// Disconnect closes the connection and clears presence and the queue. It is
// idempotent and may be called from an Observer.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.gen++
	conn := s.conn
	s.resetLocked()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	log.Debug().Msg("Disconnected from relay")
}

// Subscribe registers o until the returned function is called.
func (s *Session) Subscribe(o Observer) (unsubscribe func()) {
	s.mu.Lock()
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, observerEntry{id: id, obs: o})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.observers = slices.DeleteFunc(s.observers, func(e observerEntry) bool { return e.id == id })
		s.mu.Unlock()
	}
}

func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Self is this client's own presence entry, zero until the relay has
// welcomed it.
func (s *Session) Self() domain.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Presence returns the last known peers, excluding self.
func (s *Session) Presence() []domain.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.presence)
}

func (s *Session) readLoop(gen uint64, conn port.RelayConn) {
	for {
		ev, err := conn.Receive()
		if err != nil {
			s.mu.Lock()
			if gen != s.gen {
				s.mu.Unlock()
				return
			}
			s.gen++
			s.resetLocked()
			observers := s.observersLocked()
			s.mu.Unlock()

			_ = conn.Close()
			log.Warn().Err(err).Msg("Relay connection lost")
			for _, o := range observers {
				o.OnClosed(err)
			}
			return
		}

		if !s.dispatch(gen, ev) {
			return
		}
	}
}

// dispatch applies ev to the local state and hands it to the observers. It
// reports false once the connection has been abandoned.
func (s *Session) dispatch(gen uint64, ev domain.Event) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}

	var notify func(Observer)
	switch p := ev.Payload.(type) {
	case domain.Peer:
		s.self = p
	case []domain.Peer:
		peers := make([]domain.Peer, 0, len(p))
		for _, peer := range p {
			if peer.ID != s.self.ID {
				peers = append(peers, peer)
			}
		}
		s.presence = peers
		notify = func(o Observer) { o.OnPresence(slices.Clone(peers)) }
	case domain.PeerRemoved:
		s.presence = slices.DeleteFunc(s.presence, func(peer domain.Peer) bool { return peer.ID == p.ID })
		notify = func(o Observer) { o.OnPeerRemoved(p.ID) }
	case domain.Signal:
		notify = func(o Observer) { o.OnSignal(p) }
	default:
		log.Warn().Str("event", string(ev.Kind)).Msg("Ignoring unexpected relay event")
	}

	if notify == nil {
		s.mu.Unlock()
		return true
	}
	observers := s.observersLocked()
	s.mu.Unlock()

	for _, o := range observers {
		notify(o)
	}
	return true
}

func (s *Session) observersLocked() []Observer {
	out := make([]Observer, len(s.observers))
	for i, e := range s.observers {
		out[i] = e.obs
	}
	return out
}

func (s *Session) resetLocked() {
	s.status = StatusDisconnected
	s.conn = nil
	s.self = domain.Peer{}
	s.presence = nil
	s.queue = nil
}
