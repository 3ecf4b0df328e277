// Package alert models the network-visible footprint of one attacker action.
//
// An Alert is a mutable accumulator while it is being built. The structured
// lists (destinations, services) and their denormalized convenience fields
// (addresses, ports) are always mutated together.
package alert

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/Mindburn-Labs/decoyrange/pkg/network"
)

// Alert describes what an attacker action looked like on the network and on
// the host it ran from.
type Alert struct {
	source       *network.Host
	destinations []*network.Host
	services     []*network.Service
	techniques   []string

	// Denormalized views of source/destinations/services.
	srcIP    netip.Addr
	dstIPs   []netip.Addr
	dstPorts []int

	User      string
	Command   string
	Files     []string
	OS        string
	OSVersion string
}

// New creates an alert. Slices are copied so the alert owns its containers.
func New(src *network.Host, dsts []*network.Host, services []*network.Service) *Alert {
	a := &Alert{
		destinations: make([]*network.Host, 0, len(dsts)),
		services:     make([]*network.Service, 0, len(services)),
		techniques:   make([]string, 0),
		dstIPs:       make([]netip.Addr, 0, len(dsts)),
		dstPorts:     make([]int, 0, len(services)),
		Files:        make([]string, 0),
	}
	if src != nil {
		a.SetSource(src)
	}
	for _, h := range dsts {
		a.AddDestination(h)
	}
	for _, s := range services {
		a.AddService(s)
	}
	return a
}

// SetSource sets the host the action ran from.
func (a *Alert) SetSource(h *network.Host) {
	if h == nil {
		a.ClearSource()
		return
	}
	a.source = h
	a.srcIP = h.Address
}

// ClearSource removes the source host.
func (a *Alert) ClearSource() {
	a.source = nil
	a.srcIP = netip.Addr{}
}

// AddDestination appends a destination host.
func (a *Alert) AddDestination(h *network.Host) {
	if h == nil {
		return
	}
	a.destinations = append(a.destinations, h)
	a.dstIPs = append(a.dstIPs, h.Address)
}

// RemoveDestination removes the first occurrence of h. It reports whether h
// was present.
func (a *Alert) RemoveDestination(h *network.Host) bool {
	for i, d := range a.destinations {
		if d != h {
			continue
		}
		a.destinations = append(a.destinations[:i:i], a.destinations[i+1:]...)
		a.dstIPs = append(a.dstIPs[:i:i], a.dstIPs[i+1:]...)
		return true
	}
	return false
}

// AddService appends a targeted service.
func (a *Alert) AddService(s *network.Service) {
	if s == nil {
		return
	}
	a.services = append(a.services, s)
	a.dstPorts = append(a.dstPorts, s.Port)
}

// RemoveService removes the first occurrence of s. It reports whether s was
// present.
func (a *Alert) RemoveService(s *network.Service) bool {
	for i, candidate := range a.services {
		if candidate != s {
			continue
		}
		a.services = append(a.services[:i:i], a.services[i+1:]...)
		a.dstPorts = append(a.dstPorts[:i:i], a.dstPorts[i+1:]...)
		return true
	}
	return false
}

// AddTechniques records the techniques that produced the activity. Detectors
// may use them to decide detection odds; they do not take part in Matches.
func (a *Alert) AddTechniques(ids ...string) {
	a.techniques = append(a.techniques, ids...)
}

func (a *Alert) Source() *network.Host { return a.source }

func (a *Alert) Destinations() []*network.Host {
	return append([]*network.Host(nil), a.destinations...)
}

func (a *Alert) Services() []*network.Service {
	return append([]*network.Service(nil), a.services...)
}

func (a *Alert) Techniques() []string {
	return append([]string(nil), a.techniques...)
}

func (a *Alert) SrcIP() netip.Addr { return a.srcIP }

func (a *Alert) DstIPs() []netip.Addr {
	return append([]netip.Addr(nil), a.dstIPs...)
}

func (a *Alert) DstPorts() []int {
	return append([]int(nil), a.dstPorts...)
}

// TargetsDecoy reports whether any destination is a decoy.
func (a *Alert) TargetsDecoy() bool {
	for _, d := range a.destinations {
		if d.Decoy {
			return true
		}
	}
	return false
}

// Matches reports whether two alerts describe the same footprint: the same
// source (or both none), the same destination set and the same service set.
// References compare by identity. Order and multiplicity are ignored.
func (a *Alert) Matches(other *Alert) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.source != other.source {
		return false
	}
	return sameSet(a.destinations, other.destinations) && sameSet(a.services, other.services)
}

func sameSet[T comparable](x, y []T) bool {
	left := make(map[T]struct{}, len(x))
	for _, v := range x {
		left[v] = struct{}{}
	}
	right := make(map[T]struct{}, len(y))
	for _, v := range y {
		right[v] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for v := range left {
		if _, ok := right[v]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy that shares host and service references.
func (a *Alert) Clone() *Alert {
	c := New(a.source, a.destinations, a.services)
	c.techniques = append(c.techniques, a.techniques...)
	c.User = a.User
	c.Command = a.Command
	c.Files = append(c.Files, a.Files...)
	c.OS = a.OS
	c.OSVersion = a.OSVersion
	return c
}

// Fields returns the network-facing fields as plain values.
func (a *Alert) Fields() map[string]any {
	src := ""
	if a.source != nil {
		src = a.source.Name
	}
	dsts := make([]string, 0, len(a.destinations))
	for _, d := range a.destinations {
		dsts = append(dsts, d.Name)
	}
	svcs := make([]string, 0, len(a.services))
	for _, s := range a.services {
		svcs = append(svcs, s.String())
	}
	return map[string]any{
		"src_host":  src,
		"dst_hosts": dsts,
		"services":  svcs,
	}
}

func (a *Alert) String() string {
	var b strings.Builder
	b.WriteString("Alert: ")
	if a.source != nil {
		fmt.Fprintf(&b, "src=%s ", a.source.Name)
	}
	names := make([]string, 0, len(a.destinations))
	for _, d := range a.destinations {
		names = append(names, d.Name)
	}
	svcs := make([]string, 0, len(a.services))
	for _, s := range a.services {
		svcs = append(svcs, s.String())
	}
	fmt.Fprintf(&b, "dst=%v services=%v", names, svcs)
	return b.String()
}
