// Package blueconfig loads and validates the declarative payload that
// defines the defender's action space: which handlers exist, their static
// configuration, their rewards, the shared data they use and how each one
// is laid out in the dispatcher.
package blueconfig

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
)

// Payload is the registration payload. Actions register in slice order.
type Payload struct {
	Version    string                `yaml:"version" json:"version"`
	SharedData map[string]SharedSpec `yaml:"shared_data" json:"shared_data,omitempty"`
	Actions    []ActionSpec          `yaml:"actions" json:"actions"`
}

// Clone copies the parts of p that Validate rewrites, so the copy can be
// normalized while p stays as the caller built it. Config and Args maps are
// shared.
func (p *Payload) Clone() *Payload {
	c := *p
	c.SharedData = maps.Clone(p.SharedData)
	c.Actions = slices.Clone(p.Actions)
	for i := range c.Actions {
		c.Actions[i].SharedData = slices.Clone(c.Actions[i].SharedData)
	}
	return &c
}

// SharedSpec declares one shared container. In YAML it is either a bare
// kind name ("list") or a mapping with kind and constructor args.
type SharedSpec struct {
	Kind string         `yaml:"kind" json:"kind"`
	Args map[string]any `yaml:"args" json:"args,omitempty"`
}

func (s *SharedSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.Kind = value.Value
		return nil
	}
	type plain SharedSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = SharedSpec(p)
	return nil
}

// ActionSpec declares one defensive action.
type ActionSpec struct {
	Name        string         `yaml:"name" json:"name"`
	Handler     string         `yaml:"handler" json:"handler"`
	Config      map[string]any `yaml:"config" json:"config,omitempty"`
	Reward      RewardSpec     `yaml:"reward" json:"reward"`
	SharedData  []string       `yaml:"shared_data" json:"shared_data,omitempty"`
	ActionSpace DispatchSpec   `yaml:"action_space" json:"action_space"`
}

type RewardSpec struct {
	Immediate float64 `yaml:"immediate" json:"immediate"`
	Recurring float64 `yaml:"recurring" json:"recurring"`
}

// DispatchSpec is the dispatcher registration of an action. Range is only
// read for the range kind.
type DispatchSpec struct {
	Type  string `yaml:"type" json:"type"`
	Range int    `yaml:"range,omitempty" json:"range,omitempty"`
}

// Kind parses Type.
func (d DispatchSpec) Kind() (actionspace.Kind, error) {
	return actionspace.ParseKind(d.Type)
}

func (a ActionSpec) String() string {
	return fmt.Sprintf("%s(%s, %s)", a.Name, a.Handler, strings.ToLower(a.ActionSpace.Type))
}
