package shared

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// Constructor builds a container from its declared arguments.
type Constructor func(args map[string]any) (Container, error)

// Built-in container kinds.
const (
	KindList = "list"
	KindSet  = "set"
	KindMap  = "map"
)

// Kinds maps container kind names to constructors. Custom kinds are
// registered explicitly by the program that needs them.
type Kinds struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewKinds returns a registry holding list, set and map. "dict" is accepted
// as an alias for map.
func NewKinds() *Kinds {
	k := &Kinds{ctors: make(map[string]Constructor)}
	k.ctors[KindList] = func(map[string]any) (Container, error) { return NewList(), nil }
	k.ctors[KindSet] = func(map[string]any) (Container, error) { return NewSet(), nil }
	k.ctors[KindMap] = func(map[string]any) (Container, error) { return NewMap(), nil }
	k.ctors["dict"] = k.ctors[KindMap]
	return k
}

// Register adds a custom container kind.
func (k *Kinds) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return rangeerr.Invalid("container kind needs a name and a constructor")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.ctors[name]; ok {
		return rangeerr.Invalid("container kind %q already registered", name)
	}
	k.ctors[name] = ctor
	return nil
}

// New constructs a container of the named kind.
func (k *Kinds) New(kind string, args map[string]any) (Container, error) {
	k.mu.RLock()
	ctor, ok := k.ctors[kind]
	k.mu.RUnlock()
	if !ok {
		return nil, rangeerr.Invalid("unknown shared container kind %q", kind)
	}
	c, err := ctor(args)
	if err != nil {
		return nil, fmt.Errorf("%w: construct %s: %w", rangeerr.ErrInvalidConfiguration, kind, err)
	}
	return c, nil
}

// Names lists the registered kinds in sorted order.
func (k *Kinds) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.ctors))
	for name := range k.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
