// Package config handles bagtrackerd configuration.
//
// Configuration is loaded in three layers, lowest to highest precedence:
// built-in defaults, a key=value config file, then command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds bagtrackerd's runtime configuration.
type Config struct {
	// Chain RPC endpoint.
	RPC RPCConfig

	// Storage backend DSN: "memory://", "sqlite://<path>", or "badger://<path>".
	StoreDSN string `conf:"store.dsn"`

	// Polling. PollInterval is validated and logged but drives no loop:
	// the daemon's only loop runs every ReorgSweepInterval, and each sweep
	// also picks up new blocks.
	PollInterval       time.Duration `conf:"poll.interval"`
	ReorgSweepInterval time.Duration `conf:"poll.reorg_interval"`

	// BaseHeight is the height the tracker treats as already processed at
	// startup; scanning begins at the block after it. It applies on every
	// start, since no chain tip is persisted.
	BaseHeight int64 `conf:"base_height"`

	// Logging.
	Log LogConfig
}

// RPCConfig holds the remote node's JSON-RPC endpoint and credentials.
type RPCConfig struct {
	Endpoint string `conf:"rpc.endpoint"`
	User     string `conf:"rpc.user"`
	Pass     string `conf:"rpc.pass"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			Endpoint: "http://127.0.0.1:8332",
		},
		StoreDSN:           "memory://",
		PollInterval:       30 * time.Second,
		ReorgSweepInterval: 30 * time.Second,
		BaseHeight:         0,
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultDataDir returns the platform-specific default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bagtrackerd"
	}
	return filepath.Join(home, ".bagtrackerd")
}

// Validate checks a loaded configuration for internal consistency.
func Validate(cfg *Config) error {
	if cfg.RPC.Endpoint == "" {
		return fmt.Errorf("config: rpc.endpoint must not be empty")
	}
	if cfg.StoreDSN == "" {
		return fmt.Errorf("config: store.dsn must not be empty")
	}
	scheme, _, ok := strings.Cut(cfg.StoreDSN, "://")
	if !ok {
		return fmt.Errorf("config: store.dsn %q is missing a scheme (memory://, sqlite://, badger://)", cfg.StoreDSN)
	}
	switch scheme {
	case "memory", "sqlite", "badger":
	default:
		return fmt.Errorf("config: store.dsn scheme %q not recognized", scheme)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("config: poll.interval must be positive")
	}
	if cfg.ReorgSweepInterval <= 0 {
		return fmt.Errorf("config: poll.reorg_interval must be positive")
	}
	if cfg.BaseHeight < 0 {
		return fmt.Errorf("config: base_height must not be negative")
	}
	return nil
}

// StorePath returns the filesystem path portion of a sqlite:// or
// badger:// DSN. A memory:// DSN has no path portion; callers are expected
// to check the scheme first.
func (c *Config) StorePath() string {
	_, path, _ := strings.Cut(c.StoreDSN, "://")
	return path
}

// StoreScheme returns the scheme portion of StoreDSN ("memory", "sqlite",
// or "badger").
func (c *Config) StoreScheme() string {
	scheme, _, _ := strings.Cut(c.StoreDSN, "://")
	return scheme
}
