package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	repo "github.com/Wyydra/huddle/internal/adapter/driven/persistence/memory"
	handler "github.com/Wyydra/huddle/internal/adapter/driving/http"
	"github.com/Wyydra/huddle/internal/config"
	"github.com/Wyydra/huddle/internal/core/service"
	"github.com/Wyydra/huddle/internal/logging"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

var Version = "dev"

func main() {
	configPath := flag.StringP("config", "c", "", "path to a huddle.yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	rc := cfg.Relay

	l, err := logging.New(rc.LogLevel, rc.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build logger")
	}

	presence := repo.NewPresenceRepository()
	router := service.NewRouter(presence, service.RelayConfig{
		HeartbeatInterval: rc.HeartbeatInterval,
		HeartbeatGrace:    rc.HeartbeatGrace,
	})
	h := handler.NewHandler(router, handler.Options{
		MaxMessageBytes:   rc.MaxMessageBytes,
		MessagesPerSecond: rc.MessagesPerSecond,
		MessageBurst:      rc.MessageBurst,
		SendBuffer:        rc.SendBuffer,
		AllowedOrigins:    rc.AllowedOrigins,
		Version:           Version,
	})

	go router.Run()

	srv := &http.Server{
		Addr:              rc.Addr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", rc.Addr).Str("version", Version).Str("env", rc.Env).Msg("Starting relay")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked WebSocket connections; Stop
	// closes them.
	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	router.Stop()
	l.Info().Msg("Server exited")
}
