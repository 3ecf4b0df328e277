// Package config holds process configuration for rangectl, read from
// DECOYRANGE_* environment variables. Command-line flags override it.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
)

// Config is the process configuration.
type Config struct {
	TopologyPath     string `env:"TOPOLOGY" envDefault:"configs/topology.yaml"`
	BlueActionsPath  string `env:"BLUE_ACTIONS" envDefault:"configs/blue_actions.yaml"`
	RedPath          string `env:"RED"`
	DetectorPath     string `env:"DETECTOR"`
	RewardPolicyPath string `env:"REWARD_POLICY"`

	Horizon  int     `env:"HORIZON" envDefault:"100"`
	Episodes int     `env:"EPISODES" envDefault:"1"`
	RootSeed int64   `env:"SEED" envDefault:"0"`
	Seeds    []int64 `env:"SEEDS" envSeparator:","`
	TickRate float64 `env:"TICK_RATE" envDefault:"0"`
	RunID    string  `env:"RUN_ID"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	RecorderDSN string `env:"RECORDER_DSN" envDefault:"memory:"`

	TelemetryEnabled bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint     string `env:"OTEL_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName      string `env:"SERVICE_NAME" envDefault:"decoyrange"`
}

const prefix = "DECOYRANGE_"

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: prefix})
}

// FromMap reads the configuration from environ instead of the process
// environment. Keys carry the DECOYRANGE_ prefix.
func FromMap(environ map[string]string) (Config, error) {
	return parse(env.Options{Prefix: prefix, Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. Load calls it; callers that override
// fields from flags should call it again.
func (c Config) Validate() error {
	if c.Horizon <= 0 {
		return rangeerr.Invalid("horizon must be > 0, got %d", c.Horizon)
	}
	if c.Episodes <= 0 {
		return rangeerr.Invalid("episodes must be > 0, got %d", c.Episodes)
	}
	if c.TickRate < 0 {
		return rangeerr.Invalid("tick rate must be >= 0, got %g", c.TickRate)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, rangeerr.Invalid("log level %q: %v", c.LogLevel, err)
	}
	return lvl, nil
}

// SeedSequence replays Seeds when set, otherwise derives episode seeds
// from RootSeed.
func (c Config) SeedSequence() seed.Sequence {
	if len(c.Seeds) > 0 {
		return seed.NewReplay(c.Seeds...)
	}
	return seed.NewDerived(c.RootSeed, "episodes")
}

// Logger builds a text logger writing to w at LogLevel.
func (c Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
