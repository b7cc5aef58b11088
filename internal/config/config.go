// Package config loads relay and peer settings from an optional huddle.yaml,
// a .env file and HUDDLE_ environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

const (
	EnvPrefix   = "HUDDLE"
	DefaultFile = "huddle.yaml"
)

type Config struct {
	Relay Relay `fig:"relay"`
	Peer  Peer  `fig:"peer"`
}

// Relay configures cmd/server.
type Relay struct {
	Addr              string        `fig:"addr" default:":8080"`
	Env               string        `fig:"env" default:"development"`
	LogLevel          string        `fig:"logLevel" default:"info"`
	HeartbeatInterval time.Duration `fig:"heartbeatInterval" default:"30s"`
	HeartbeatGrace    time.Duration `fig:"heartbeatGrace" default:"10s"`
	MaxMessageBytes   int           `fig:"maxMessageBytes" default:"65536"`
	MessagesPerSecond float64       `fig:"messagesPerSecond" default:"50"`
	MessageBurst      int           `fig:"messageBurst" default:"100"`
	SendBuffer        int           `fig:"sendBuffer" default:"64"`
	AllowedOrigins    []string      `fig:"allowedOrigins" default:"[*]"`
}

// Peer configures cmd/peer.
type Peer struct {
	RelayURL        string        `fig:"relayURL" default:"ws://localhost:8080/ws"`
	ProviderURL     string        `fig:"providerURL"`
	ProviderSecret  string        `fig:"providerSecret"`
	ProviderTimeout time.Duration `fig:"providerTimeout" default:"10s"`
	QueueLimit      int           `fig:"queueLimit" default:"64"`
	AnswerTimeout   time.Duration `fig:"answerTimeout" default:"30s"`
}

// Load reads the configuration. With an empty path it looks for huddle.yaml
// in . and configs/ and carries on without one; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	// .env is a development convenience; it never overrides the real
	// environment.
	_ = godotenv.Load()

	file, dirs := DefaultFile, []string{".", "configs"}
	if path != "" {
		file, dirs = filepath.Base(path), []string{filepath.Dir(path)}
	}

	var cfg Config
	err := fig.Load(&cfg, fig.File(file), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) && path == "" {
		cfg = Config{}
		err = fig.Load(&cfg, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	r := c.Relay
	switch {
	case r.Env != "development" && r.Env != "production":
		return fmt.Errorf("relay.env must be development or production, got %q", r.Env)
	case r.HeartbeatInterval <= 0 || r.HeartbeatGrace <= 0:
		return errors.New("relay heartbeat interval and grace must be positive")
	case r.MaxMessageBytes <= 0 || r.SendBuffer <= 0:
		return errors.New("relay.maxMessageBytes and relay.sendBuffer must be positive")
	case r.MessagesPerSecond <= 0 || r.MessageBurst <= 0:
		return errors.New("relay rate limit must be positive")
	case c.Peer.QueueLimit <= 0:
		return errors.New("peer.queueLimit must be positive")
	}
	return nil
}

func (r Relay) IsDevelopment() bool {
	return r.Env == "development"
}
