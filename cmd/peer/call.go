package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Wyydra/huddle/internal/adapter/driven/media/pion"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	errNoAnswer  = errors.New("no answer")
	errPeerLeft  = errors.New("peer left")
	errCallEnded = errors.New("call ended by peer")
)

var callName string

var callCmd = &cobra.Command{
	Use:   "call <display-name>",
	Short: "Call an online peer and open a data channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		wait := cfg.Peer.AnswerTimeout

		l, err := dialRelay(ctx, callName)
		if err != nil {
			return err
		}
		defer l.Close()

		target, err := waitForPeer(ctx, l, args[0], wait)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "calling %s (%s)\n", target.DisplayName, target.ID.Short())

		p, err := pion.NewPeer(iceServers(ctx), target.ID, l.session.Send)
		if err != nil {
			return err
		}
		defer p.Close()

		offer, err := p.Offer()
		if err != nil {
			return err
		}
		if err := l.session.Send(offer); err != nil {
			return err
		}

		err = runCall(ctx, out, l, p, target, wait)
		switch {
		case errors.Is(err, context.Canceled):
			// Hang up politely; the relay may already be gone.
			if sendErr := l.session.Send(domain.NewEndCall(target.ID)); sendErr != nil {
				log.Debug().Err(sendErr).Msg("Could not send end-call")
			}
			fmt.Fprintln(out, "call ended")
			return nil
		case errors.Is(err, errCallEnded):
			fmt.Fprintln(out, "call ended by", target.DisplayName)
			return nil
		}
		return err
	},
}

func init() {
	callCmd.Flags().StringVarP(&callName, "name", "n", "", "display name shown to other peers")
	callCmd.MarkFlagRequired("name")
}

// waitForPeer blocks until a peer with the display name is online. Early
// misses are expected while presence converges.
func waitForPeer(ctx context.Context, l *link, name string, timeout time.Duration) (domain.Peer, error) {
	find := func(peers []domain.Peer) (domain.Peer, bool) {
		for _, p := range peers {
			if p.DisplayName == name {
				return p, true
			}
		}
		return domain.Peer{}, false
	}
	if p, ok := find(l.session.Presence()); ok {
		return p, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return domain.Peer{}, ctx.Err()
		case <-timer.C:
			return domain.Peer{}, fmt.Errorf("%q is not online after %s", name, timeout)
		case err := <-l.closed:
			return domain.Peer{}, fmt.Errorf("relay connection lost: %w", err)
		case peers := <-l.presence:
			if p, ok := find(peers); ok {
				return p, nil
			}
		}
	}
}

// runCall drives the call after the offer went out. The answer must arrive
// within wait; the relay offers no delivery guarantee.
func runCall(ctx context.Context, out io.Writer, l *link, p *pion.Peer, target domain.Peer, wait time.Duration) error {
	answered := false
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-deadline.C:
			if !answered {
				return fmt.Errorf("%w from %s within %s", errNoAnswer, target.DisplayName, wait)
			}

		case err := <-l.closed:
			return fmt.Errorf("relay connection lost: %w", err)

		case id := <-l.removed:
			if id == target.ID {
				return fmt.Errorf("%w: %s", errPeerLeft, target.DisplayName)
			}

		case <-p.Open():
			fmt.Fprintf(out, "connected to %s, press Ctrl-C to hang up\n", target.DisplayName)
			return stayConnected(ctx, l, p, target)

		case <-p.Done():
			return errors.New("peer connection failed")

		case sig := <-l.signals:
			if sig.Sender != target.ID {
				continue
			}
			switch sig.Kind {
			case domain.EventAnswer:
				if err := p.HandleAnswer(sig); err != nil {
					return err
				}
				answered = true
			case domain.EventICECandidate:
				if err := p.AddCandidate(sig); err != nil {
					log.Warn().Err(err).Msg("Bad remote candidate")
				}
			case domain.EventEndCall:
				return errCallEnded
			}
		}
	}
}

func stayConnected(ctx context.Context, l *link, p *pion.Peer, target domain.Peer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Done():
			return errCallEnded
		case err := <-l.closed:
			return fmt.Errorf("relay connection lost: %w", err)
		case id := <-l.removed:
			if id == target.ID {
				return fmt.Errorf("%w: %s", errPeerLeft, target.DisplayName)
			}
		case sig := <-l.signals:
			if sig.Sender != target.ID {
				continue
			}
			switch sig.Kind {
			case domain.EventICECandidate:
				if err := p.AddCandidate(sig); err != nil {
					log.Warn().Err(err).Msg("Bad remote candidate")
				}
			case domain.EventEndCall:
				return errCallEnded
			}
		}
	}
}
