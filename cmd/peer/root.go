package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/Wyydra/huddle/internal/adapter/driven/provider"
	"github.com/Wyydra/huddle/internal/config"
	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/Wyydra/huddle/internal/core/port"
	"github.com/Wyydra/huddle/internal/logging"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	configPath  string
	logLevel    string
	relayURL    string
	providerURL string

	cfg *config.Config
)

var errNoProvider = errors.New("no room provider configured (set peer.providerURL or --provider)")

var rootCmd = &cobra.Command{
	Use:     "peer",
	Short:   "Command-line client for a huddle relay",
	Long:    `peer connects to a huddle signaling relay, lists who is online and places or answers calls over a WebRTC data channel. It also drives the room provider: creating, joining, validating and ending rooms, and fetching ICE servers.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("relay") {
			c.Peer.RelayURL = relayURL
		}
		if cmd.Flags().Changed("provider") {
			c.Peer.ProviderURL = providerURL
		}
		cfg = c

		_, err = logging.New(logLevel, true)
		return err
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "path to a huddle.yaml config file")
	pf.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVar(&relayURL, "relay", "", "relay WebSocket URL, overrides peer.relayURL")
	pf.StringVar(&providerURL, "provider", "", "room provider base URL, overrides peer.providerURL")

	rootCmd.AddCommand(listenCmd, callCmd, roomCmd, iceCmd)
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func roomProvider() (port.RoomProvider, error) {
	if cfg.Peer.ProviderURL == "" {
		return nil, errNoProvider
	}
	return provider.NewClient(cfg.Peer.ProviderURL, cfg.Peer.ProviderSecret, cfg.Peer.ProviderTimeout), nil
}

// iceServers asks the provider when one is configured and uses the fallback
// list otherwise. It never fails.
func iceServers(ctx context.Context) []domain.ICEServer {
	p, err := roomProvider()
	if err != nil {
		return slices.Clone(provider.FallbackICEServers)
	}
	return p.ICEServers(ctx)
}
