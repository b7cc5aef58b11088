package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Wyydra/huddle/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/service"
	"github.com/rs/zerolog/log"
)

// link turns Session callbacks into channels the commands select on.
type link struct {
	session  *service.Session
	presence chan []domain.Peer // latest snapshot only
	removed  chan domain.ConnID
	signals  chan domain.Signal
	closed   chan error
}

func dialRelay(ctx context.Context, name string) (*link, error) {
	s := service.NewSession(ws.NewDialer(cfg.Peer.RelayURL), service.SessionConfig{QueueLimit: cfg.Peer.QueueLimit})
	l := &link{
		session:  s,
		presence: make(chan []domain.Peer, 1),
		removed:  make(chan domain.ConnID, 16),
		signals:  make(chan domain.Signal, 64),
		closed:   make(chan error, 1),
	}

	s.Subscribe(service.ObserverFuncs{
		Presence: func(peers []domain.Peer) {
			// Single producer: after the drain the send cannot block.
			select {
			case <-l.presence:
			default:
			}
			l.presence <- peers
		},
		PeerRemoved: func(id domain.ConnID) {
			select {
			case l.removed <- id:
			default:
			}
		},
		Signal: func(sig domain.Signal) {
			select {
			case l.signals <- sig:
			default:
				log.Warn().Str("kind", string(sig.Kind)).Msg("Signal backlog full, dropping")
			}
		},
		Closed: func(err error) {
			select {
			case l.closed <- err:
			default:
			}
		},
	})

	if err := s.ConnectRetry(ctx, name, service.DefaultBackoff()); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *link) Close() {
	l.session.Disconnect()
}

func printPresence(w io.Writer, peers []domain.Peer) {
	if len(peers) == 0 {
		fmt.Fprintln(w, "nobody else is online")
		return
	}
	fmt.Fprintln(w, "online:")
	for _, p := range peers {
		fmt.Fprintf(w, "  %-24s %s\n", p.DisplayName, p.ID)
	}
}
