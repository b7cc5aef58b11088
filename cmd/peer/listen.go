package main

import (
	"fmt"

	"github.com/Wyydra/huddle/internal/adapter/driven/media/pion"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listenName string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay online and answer incoming calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		l, err := dialRelay(ctx, listenName)
		if err != nil {
			return err
		}
		defer l.Close()
		fmt.Fprintf(out, "listening as %q\n", listenName)

		calls := make(map[domain.ConnID]*pion.Peer)
		defer func() {
			for _, p := range calls {
				p.Close()
			}
		}()
		hangUp := func(id domain.ConnID) {
			if p, ok := calls[id]; ok {
				p.Close()
				delete(calls, id)
				fmt.Fprintf(out, "call with %s ended\n", id.Short())
			}
		}

		for {
			select {
			case <-ctx.Done():
				return nil

			case err := <-l.closed:
				return fmt.Errorf("relay connection lost: %w", err)

			case peers := <-l.presence:
				printPresence(out, peers)

			case id := <-l.removed:
				hangUp(id)

			case sig := <-l.signals:
				switch sig.Kind {
				case domain.EventOffer:
					hangUp(sig.Sender)
					p, err := pion.NewPeer(iceServers(ctx), sig.Sender, l.session.Send)
					if err != nil {
						return err
					}
					answer, err := p.Accept(sig)
					if err != nil {
						p.Close()
						log.Warn().Err(err).Str("peer", sig.Sender.Short()).Msg("Rejecting offer")
						continue
					}
					if err := l.session.Send(answer); err != nil {
						p.Close()
						return err
					}
					calls[sig.Sender] = p
					fmt.Fprintf(out, "answered call from %s\n", sig.Sender.Short())

				case domain.EventICECandidate:
					if p, ok := calls[sig.Sender]; ok {
						if err := p.AddCandidate(sig); err != nil {
							log.Warn().Err(err).Msg("Bad remote candidate")
						}
					}

				case domain.EventEndCall:
					hangUp(sig.Sender)

				default:
					log.Debug().Str("kind", string(sig.Kind)).Msg("Ignoring signal")
				}
			}
		}
	},
}

func init() {
	listenCmd.Flags().StringVarP(&listenName, "name", "n", "", "display name shown to other peers")
	listenCmd.MarkFlagRequired("name")
}
