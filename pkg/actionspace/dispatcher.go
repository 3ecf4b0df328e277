package actionspace

import (
	"fmt"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// Dispatcher owns the bijection between tokens and (action, target) pairs.
// It is not safe for concurrent use; one dispatcher belongs to one
// environment instance.
type Dispatcher struct {
	topo     Topology
	entries  []Entry
	names    map[string]int
	capacity int
	sealed   bool
}

// New creates an empty dispatcher sized against topo.
func New(topo Topology) *Dispatcher {
	return &Dispatcher{
		topo:    topo,
		entries: make([]Entry, 0),
		names:   make(map[string]int),
	}
}

// Register appends an action. Its lower bound is the current capacity and
// capacity grows by 1 (KindNone), the live host count (KindHost), the live
// subnet count (KindSubnet) or width (KindRange). width is ignored for the
// other kinds. A failed registration leaves the dispatcher unchanged.
func (d *Dispatcher) Register(name string, h Handler, kind Kind, width int) error {
	if d.sealed {
		return rangeerr.Invalid("register %q: action space is sealed", name)
	}
	if name == "" {
		return rangeerr.Invalid("action name is required")
	}
	if h == nil {
		return rangeerr.Invalid("register %q: nil handler", name)
	}
	if _, ok := d.names[name]; ok {
		return rangeerr.Duplicate(name)
	}

	var grow int
	switch kind {
	case KindNone:
		grow = 1
	case KindHost:
		grow = len(d.topo.Hosts())
	case KindSubnet:
		grow = len(d.topo.Subnets())
	case KindRange:
		if width <= 0 {
			return rangeerr.Invalid("register %q: range width must be > 0, got %d", name, width)
		}
		grow = width
	default:
		return rangeerr.Invalid("register %q: unknown dispatch kind %s", name, kind)
	}
	if grow == 0 {
		return rangeerr.Invalid("register %q: topology has no %s targets", name, kind)
	}

	lower := d.capacity
	d.capacity += grow
	d.names[name] = len(d.entries)
	d.entries = append(d.entries, Entry{
		Name:    name,
		Handler: h,
		Kind:    kind,
		Lower:   lower,
		Upper:   d.capacity,
	})
	return nil
}

// Seal closes registration. Called once the runtime has loaded every action.
func (d *Dispatcher) Seal() {
	d.sealed = true
}

// Capacity is the size of the action space.
func (d *Dispatcher) Capacity() int {
	return d.capacity
}

// Entries returns the registered entries in registration order.
func (d *Dispatcher) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Entry looks up an entry by display name.
func (d *Dispatcher) Entry(name string) (Entry, bool) {
	i, ok := d.names[name]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// Resolve maps token onto the first entry whose range contains it.
//
// For host, subnet and range entries the target index is
// (token - Lower) mod Width. The modulo is deliberate: entry widths are fixed
// at registration while the topology may change mid-episode (decoys are
// added and removed), so resolution wraps instead of indexing strictly. Host
// and subnet targets are then read from the live enumeration; an index the
// live topology no longer has is reported as a handler execution failure.
//
// A token outside [0, Capacity()) violates the caller's contract and fails
// with rangeerr.ErrDispatchOutOfRange.
func (d *Dispatcher) Resolve(token int) (Resolution, error) {
	if token < 0 || token >= d.capacity {
		return Resolution{}, outOfRange(token, d.capacity)
	}

	for _, e := range d.entries {
		if !e.Contains(token) {
			continue
		}
		target := Target{Kind: e.Kind}
		if e.Kind == KindNone {
			return Resolution{Entry: e, Target: target}, nil
		}

		target.Index = (token - e.Lower) % e.Width()
		switch e.Kind {
		case KindHost:
			hosts := d.topo.Hosts()
			if target.Index >= len(hosts) {
				return Resolution{}, rangeerr.Execution(e.Name,
					fmt.Errorf("host index %d gone, %d live hosts", target.Index, len(hosts)))
			}
			target.Host = hosts[target.Index]
		case KindSubnet:
			subnets := d.topo.Subnets()
			if target.Index >= len(subnets) {
				return Resolution{}, rangeerr.Execution(e.Name,
					fmt.Errorf("subnet index %d gone, %d live subnets", target.Index, len(subnets)))
			}
			target.Subnet = subnets[target.Index]
		}
		return Resolution{Entry: e, Target: target}, nil
	}

	return Resolution{}, outOfRange(token, d.capacity)
}

// Token is the inverse of Resolve: the token that selects action name with
// target offset index.
func (d *Dispatcher) Token(name string, index int) (int, error) {
	e, ok := d.Entry(name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown action %q", rangeerr.ErrDispatchOutOfRange, name)
	}
	if index < 0 || index >= e.Width() {
		return 0, fmt.Errorf("%w: %s index %d not in [0,%d)", rangeerr.ErrDispatchOutOfRange, name, index, e.Width())
	}
	return e.Lower + index, nil
}

func outOfRange(token, capacity int) error {
	return fmt.Errorf("%w: token %d not in [0,%d)", rangeerr.ErrDispatchOutOfRange, token, capacity)
}
