// Package detector decides which attacker alerts the defender notices and
// turns noticed alerts into the defender's observation vector.
package detector

import (
	"fmt"

	"github.com/Mindburn-Labs/decoyrange/pkg/alert"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
)

// Detector filters alerts down to the ones it notices.
type Detector interface {
	Detect(alerts []*alert.Alert) []*alert.Alert
}

// Perfect notices everything.
type Perfect struct{}

func (Perfect) Detect(alerts []*alert.Alert) []*alert.Alert {
	return append([]*alert.Alert(nil), alerts...)
}

// Probabilistic notices an alert with the highest probability configured
// for any of its techniques, or Default when none is configured.
type Probabilistic struct {
	Default     float64
	ByTechnique map[string]float64
	rng         *seed.PRNG
}

func NewProbabilistic(def float64, byTechnique map[string]float64, rng *seed.PRNG) *Probabilistic {
	techs := make(map[string]float64, len(byTechnique))
	for k, v := range byTechnique {
		techs[k] = v
	}
	return &Probabilistic{Default: def, ByTechnique: techs, rng: rng}
}

// Reseed replaces the detector's randomness.
func (p *Probabilistic) Reseed(rng *seed.PRNG) { p.rng = rng }

func (p *Probabilistic) probability(a *alert.Alert) float64 {
	prob, matched := 0.0, false
	for _, tech := range a.Techniques() {
		if v, ok := p.ByTechnique[tech]; ok && (!matched || v > prob) {
			prob, matched = v, true
		}
	}
	if !matched {
		return p.Default
	}
	return prob
}

func (p *Probabilistic) Detect(alerts []*alert.Alert) []*alert.Alert {
	out := make([]*alert.Alert, 0, len(alerts))
	for _, a := range alerts {
		if p.rng.Bernoulli(p.probability(a)) {
			out = append(out, a)
		}
	}
	return out
}

// Handler runs several detectors and merges what they notice. Alerts that
// Match an earlier one are dropped.
type Handler struct {
	detectors []Detector
}

func NewHandler(detectors ...Detector) *Handler {
	return &Handler{detectors: append([]Detector(nil), detectors...)}
}

func (h *Handler) Detect(alerts []*alert.Alert) []*alert.Alert {
	out := make([]*alert.Alert, 0, len(alerts))
	for _, d := range h.detectors {
		for _, a := range d.Detect(alerts) {
			if !containsMatch(out, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// Reseed hands each probabilistic detector its own child stream.
func (h *Handler) Reseed(rng *seed.PRNG) {
	for i, d := range h.detectors {
		if p, ok := d.(*Probabilistic); ok {
			p.Reseed(rng.Child(childLabel(i)))
		}
	}
}

func containsMatch(list []*alert.Alert, a *alert.Alert) bool {
	for _, existing := range list {
		if existing.Matches(a) {
			return true
		}
	}
	return false
}

func childLabel(i int) string {
	return fmt.Sprintf("detector/%d", i)
}
