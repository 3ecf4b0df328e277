// Package red implements the attacker the defender plays against: a
// kill-chain agent that walks hosts through discovery, lateral movement,
// privilege escalation and impact, logging every action with the alert it
// leaves on the network.
package red

import (
	"context"
	"errors"
	"slices"

	"github.com/Mindburn-Labs/decoyrange/pkg/alert"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/seed"
)

// ErrNotStarted is returned by Act before the first Reset.
var ErrNotStarted = errors.New("red: agent has no start host")

// HistoryEntry is one attacker action.
type HistoryEntry struct {
	Tick      int
	Action    string
	Source    *network.Host
	Target    *network.Host
	Succeeded bool
	Alert     *alert.Alert
}

// Agent is the attacker collaborator the environment drives.
type Agent interface {
	// Act performs one action and returns its name.
	Act(ctx context.Context) (string, error)
	// Latest returns the most recent history entry.
	Latest() (HistoryEntry, bool)
	History() []HistoryEntry
	// Reset starts a new episode from start.
	Reset(start *network.Host)
	// Rewards is the red reward map keyed by action name.
	Rewards() map[string]float64
}

// Topology is the view of the network the attacker needs.
type Topology interface {
	Hosts() []*network.Host
	Subnets() []*network.Subnet
}

// KillChainAgent is the default attacker.
//
// Its candidates are the live hosts in subnets where it holds a foothold,
// so decoys deployed there become targets. A successful privilege
// escalation opens every subnet. Attacks on isolated hosts, or from an
// isolated source, always fail. When the host it operates from is removed
// from the network, it falls back to the previous live foothold.
type KillChainAgent struct {
	cfg  Config
	topo Topology
	rng  *seed.PRNG

	source *network.Host
	// trail holds the start host followed by every lateral-movement target,
	// in order; source is its last live entry.
	trail     []*network.Host
	footholds map[*network.Subnet]bool
	progress  map[*network.Host]int
	history   []HistoryEntry
}

// NewKillChainAgent validates cfg and returns an agent that draws from rng.
func NewKillChainAgent(cfg Config, topo Topology, rng *seed.PRNG) (*KillChainAgent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &KillChainAgent{
		cfg:       cfg,
		topo:      topo,
		rng:       rng,
		footholds: make(map[*network.Subnet]bool),
		progress:  make(map[*network.Host]int),
	}, nil
}

// Reseed replaces the agent's randomness, typically once per episode.
func (a *KillChainAgent) Reseed(rng *seed.PRNG) {
	a.rng = rng
}

func (a *KillChainAgent) Reset(start *network.Host) {
	a.source = start
	a.trail = nil
	a.history = nil
	clear(a.footholds)
	clear(a.progress)
	if start != nil {
		a.trail = []*network.Host{start}
		a.footholds[start.Subnet] = true
		// The start host is already owned.
		a.progress[start] = len(Phases)
	}
}

func (a *KillChainAgent) Act(_ context.Context) (string, error) {
	if a.source == nil {
		return "", ErrNotStarted
	}
	a.prune()

	target := a.selectTarget()
	phase := PhaseDiscovery
	if target == nil {
		// Nothing left to attack: rescan the current foothold.
		target = a.source
	} else {
		phase = Phases[a.progress[target]]
	}

	pc := a.cfg.Phases[phase]
	succeeded := target != a.source || phase != PhaseDiscovery
	succeeded = succeeded && !target.Isolated && !a.source.Isolated && a.rng.Bernoulli(pc.Success)

	al := alert.New(a.source, []*network.Host{target}, target.Services)
	al.AddTechniques(pc.Techniques...)

	if succeeded {
		a.advance(target, phase)
	}
	a.history = append(a.history, HistoryEntry{
		Tick:      len(a.history),
		Action:    phase,
		Source:    a.source,
		Target:    target,
		Succeeded: succeeded,
		Alert:     al,
	})
	return phase, nil
}

func (a *KillChainAgent) advance(target *network.Host, phase string) {
	a.progress[target]++
	switch phase {
	case PhaseLateralMovement:
		a.source = target
		a.trail = append(a.trail, target)
		a.footholds[target.Subnet] = true
	case PhasePrivilegeEscalation:
		for _, s := range a.topo.Subnets() {
			a.footholds[s] = true
		}
	}
}

// prune forgets hosts that have left the network, typically removed decoys.
// The source falls back along the trail, and footholds are rebuilt from what
// remains: the subnets of live trail hosts, or every subnet while a live host
// other than the start still carries a completed privilege escalation.
func (a *KillChainAgent) prune() {
	live := make(map[*network.Host]bool)
	for _, h := range a.topo.Hosts() {
		live[h] = true
	}
	removed := false
	for h := range a.progress {
		if !live[h] {
			delete(a.progress, h)
			removed = true
		}
	}
	if !removed {
		return
	}

	start := a.trail[0]
	kept := a.trail[:1]
	for _, h := range a.trail[1:] {
		if live[h] {
			kept = append(kept, h)
		}
	}
	a.trail = kept
	a.source = kept[len(kept)-1]

	clear(a.footholds)
	for _, h := range a.trail {
		a.footholds[h.Subnet] = true
	}
	escalation := slices.Index(Phases, PhasePrivilegeEscalation)
	for h, p := range a.progress {
		if h != start && p > escalation {
			for _, s := range a.topo.Subnets() {
				a.footholds[s] = true
			}
			break
		}
	}
}

// selectTarget continues the most advanced unfinished target, otherwise
// opens a new one chosen by the strategy. It returns nil when every
// reachable host has been taken through impact.
func (a *KillChainAgent) selectTarget() *network.Host {
	var fresh, preferred []*network.Host
	var best *network.Host
	for _, h := range a.topo.Hosts() {
		if !a.footholds[h.Subnet] {
			continue
		}
		p := a.progress[h]
		if p >= len(Phases) {
			continue
		}
		if p > 0 {
			if best == nil || p > a.progress[best] {
				best = h
			}
			continue
		}
		fresh = append(fresh, h)
		if a.cfg.Strategy == StrategyServerDowntime && h.Type.IsServer() {
			preferred = append(preferred, h)
		}
	}
	if best != nil {
		return best
	}
	if len(preferred) > 0 {
		return preferred[a.rng.Intn(len(preferred))]
	}
	if len(fresh) > 0 {
		return fresh[a.rng.Intn(len(fresh))]
	}
	return nil
}

func (a *KillChainAgent) Latest() (HistoryEntry, bool) {
	if len(a.history) == 0 {
		return HistoryEntry{}, false
	}
	return a.history[len(a.history)-1], true
}

func (a *KillChainAgent) History() []HistoryEntry {
	return append([]HistoryEntry(nil), a.history...)
}

func (a *KillChainAgent) Rewards() map[string]float64 {
	out := make(map[string]float64, len(a.cfg.Rewards))
	for k, v := range a.cfg.Rewards {
		out[k] = v
	}
	return out
}

// Source is the host the agent currently operates from.
func (a *KillChainAgent) Source() *network.Host { return a.source }
