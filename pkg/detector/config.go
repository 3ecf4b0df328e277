package detector

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
)

// Detector types understood by Build.
const (
	TypePerfect       = "perfect"
	TypeProbabilistic = "probabilistic"
)

// Config lists the detectors a Handler runs, in order.
type Config struct {
	Detectors []Spec `yaml:"detectors"`
}

// Spec configures one detector.
type Spec struct {
	Type       string             `yaml:"type"`
	Default    float64            `yaml:"default"`
	Techniques map[string]float64 `yaml:"techniques"`
}

// DefaultConfig is a single perfect detector.
func DefaultConfig() Config {
	return Config{Detectors: []Spec{{Type: TypePerfect}}}
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read detector config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, rangeerr.Invalid("parse detector config %s: %v", path, err)
	}
	return cfg, nil
}

// Build constructs the configured handler. rng seeds the probabilistic
// detectors; it may be replaced per episode with Handler.Reseed.
func Build(cfg Config, rng *seed.PRNG) (*Handler, error) {
	if len(cfg.Detectors) == 0 {
		return nil, rangeerr.Invalid("no detectors configured")
	}
	detectors := make([]Detector, 0, len(cfg.Detectors))
	for i, spec := range cfg.Detectors {
		switch spec.Type {
		case TypePerfect:
			detectors = append(detectors, Perfect{})
		case TypeProbabilistic:
			if !isProbability(spec.Default) {
				return nil, rangeerr.Invalid("detector %d: default %v not in [0,1]", i, spec.Default)
			}
			for tech, p := range spec.Techniques {
				if !isProbability(p) {
					return nil, rangeerr.Invalid("detector %d: technique %s probability %v not in [0,1]", i, tech, p)
				}
			}
			detectors = append(detectors, NewProbabilistic(spec.Default, spec.Techniques, rng.Child(childLabel(i))))
		default:
			return nil, rangeerr.Invalid("detector %d: unknown type %q", i, spec.Type)
		}
	}
	return NewHandler(detectors...), nil
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}
