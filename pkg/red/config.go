package red

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// Kill-chain phases in order.
const (
	PhaseDiscovery           = "discovery"
	PhaseLateralMovement     = "lateral_movement"
	PhasePrivilegeEscalation = "privilege_escalation"
	PhaseImpact              = "impact"
)

// Phases is the kill chain every target is walked through.
var Phases = []string{PhaseDiscovery, PhaseLateralMovement, PhasePrivilegeEscalation, PhaseImpact}

// Target selection strategies.
const (
	StrategyServerDowntime = "server_downtime"
	StrategyRandom         = "random"
)

// PhaseConfig tunes one phase.
type PhaseConfig struct {
	Success    float64  `yaml:"success"`
	Techniques []string `yaml:"techniques"`
}

// Config configures the kill-chain attacker and carries the red reward map.
type Config struct {
	Strategy  string                 `yaml:"strategy"`
	StartHost string                 `yaml:"start_host"`
	Phases    map[string]PhaseConfig `yaml:"phases"`
	// Rewards maps a phase name to the reward applied when red performs it.
	Rewards map[string]float64 `yaml:"rewards"`
}

// DefaultConfig returns a moderately capable attacker.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyServerDowntime,
		Phases: map[string]PhaseConfig{
			PhaseDiscovery:           {Success: 0.95, Techniques: []string{"T1046"}},
			PhaseLateralMovement:     {Success: 0.7, Techniques: []string{"T1021"}},
			PhasePrivilegeEscalation: {Success: 0.5, Techniques: []string{"T1068"}},
			PhaseImpact:              {Success: 0.6, Techniques: []string{"T1485"}},
		},
		Rewards: map[string]float64{
			PhaseDiscovery:           -1,
			PhaseLateralMovement:     -2,
			PhasePrivilegeEscalation: -5,
			PhaseImpact:              -10,
		},
	}
}

// LoadConfig reads a red agent config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read red agent config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a red agent config.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, rangeerr.Invalid("parse red agent config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the strategy, every phase's success rate and that every
// phase has a reward.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyServerDowntime, StrategyRandom:
	default:
		return rangeerr.Invalid("unknown red strategy %q", c.Strategy)
	}
	for name := range c.Phases {
		if !isPhase(name) {
			return rangeerr.Invalid("unknown kill-chain phase %q", name)
		}
	}
	for _, phase := range Phases {
		pc, ok := c.Phases[phase]
		if !ok {
			return rangeerr.Invalid("phase %q is not configured", phase)
		}
		if pc.Success < 0 || pc.Success > 1 {
			return rangeerr.Invalid("phase %q: success %v not in [0,1]", phase, pc.Success)
		}
		if _, ok := c.Rewards[phase]; !ok {
			return rangeerr.Invalid("phase %q has no red reward", phase)
		}
	}
	return nil
}

func isPhase(name string) bool {
	for _, p := range Phases {
		if p == name {
			return true
		}
	}
	return false
}
