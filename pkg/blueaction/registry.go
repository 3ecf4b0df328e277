// Package blueaction provides the factory registry through which the
// action runtime instantiates defensive actions by name, and the built-in
// actions themselves.
package blueaction

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/decoyrange/pkg/actionspace"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
	"github.com/Mindburn-Labs/decoyrange/pkg/shared"
)

// Topology is what defensive actions may read and change.
type Topology interface {
	actionspace.Topology
	CreateDecoyHost(name string, subnet *network.Subnet, ht network.HostType) (*network.Host, error)
	RemoveHost(name string) error
	Isolate(h *network.Host) bool
	Restore(h *network.Host) bool
}

// Deps is everything a factory receives. Shared holds exactly the
// containers the action declared.
type Deps struct {
	Network Topology
	Config  map[string]any
	Shared  map[string]shared.Container
}

// Factory builds a handler. It validates Config and the shape of Shared and
// fails with rangeerr.ErrInvalidConfiguration on anything it does not accept.
type Factory func(deps Deps) (actionspace.Handler, error)

// Registry maps handler names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtins returns a registry holding every built-in action.
func Builtins() *Registry {
	r := NewRegistry()
	for name, f := range map[string]Factory{
		HandlerNothing:      newNothing,
		HandlerDeployDecoy:  newDeployDecoy,
		HandlerIsolateDecoy: newIsolateDecoy,
		HandlerRemoveDecoy:  newRemoveDecoy,
		HandlerIsolateHost:  newIsolateHost,
		HandlerRestoreHost:  newRestoreHost,
	} {
		r.factories[name] = f
	}
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return rangeerr.Invalid("handler registration needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return rangeerr.Invalid("handler %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Build instantiates the handler registered under name.
func (r *Registry) Build(name string, deps Deps) (actionspace.Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, rangeerr.Invalid("unknown handler %q", name)
	}
	if deps.Network == nil {
		return nil, rangeerr.Invalid("handler %q: no network", name)
	}
	h, err := f(deps)
	if err != nil {
		return nil, fmt.Errorf("handler %q: %w", name, err)
	}
	return h, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists registered handler names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DecodeConfig strictly decodes a handler's static configuration into out.
// Unknown keys are rejected.
func DecodeConfig(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return rangeerr.Invalid("encode handler config: %v", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return rangeerr.Invalid("handler config: %v", err)
	}
	return nil
}

// Container fetches a declared shared container and checks its type.
func Container[T shared.Container](deps Deps, name string, required bool) (T, error) {
	var zero T
	c, ok := deps.Shared[name]
	if !ok {
		if required {
			return zero, rangeerr.Invalid("shared data %q must be declared", name)
		}
		return zero, nil
	}
	typed, ok := c.(T)
	if !ok {
		return zero, rangeerr.Invalid("shared data %q has type %T, want %T", name, c, zero)
	}
	return typed, nil
}
