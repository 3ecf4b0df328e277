// Package network provides the in-memory range topology: subnets, hosts and
// their services, plus decoy materialization for defensive actions.
//
// Enumerations are ordered by insertion. Decoys are always appended, so the
// index of a pre-existing host or subnet never changes within an episode.
package network

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	ErrHostNotFound     = errors.New("network: host not found")
	ErrSubnetNotFound   = errors.New("network: subnet not found")
	ErrDuplicateHost    = errors.New("network: duplicate host name")
	ErrDuplicateSubnet  = errors.New("network: duplicate subnet name")
	ErrAddressExhausted = errors.New("network: subnet address space exhausted")
)

// Service is a network service exposed by a host.
type Service struct {
	Name     string   `yaml:"name" json:"name"`
	Port     int      `yaml:"port" json:"port"`
	Protocol string   `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Version  string   `yaml:"version,omitempty" json:"version,omitempty"`
	CVEs     []string `yaml:"cves,omitempty" json:"cves,omitempty"`
}

func (s *Service) String() string {
	return fmt.Sprintf("%s/%d", s.Name, s.Port)
}

// HostType is the template a host is built from.
type HostType struct {
	Name     string
	Services []Service
	Decoy    bool
	CVEs     []string
}

// IsServer reports whether the type describes a server.
func (t HostType) IsServer() bool {
	return strings.Contains(strings.ToLower(t.Name), "server")
}

// Host is a single machine in the range.
type Host struct {
	Name     string
	Subnet   *Subnet
	Type     HostType
	Services []*Service
	Decoy    bool
	Isolated bool
	Address  netip.Addr
}

func (h *Host) String() string {
	return h.Name
}

// Subnet groups hosts under one address prefix.
type Subnet struct {
	Name   string
	Prefix netip.Prefix
	hosts  []*Host
	next   netip.Addr
}

// Hosts returns the subnet's hosts in insertion order.
func (s *Subnet) Hosts() []*Host {
	out := make([]*Host, len(s.hosts))
	copy(out, s.hosts)
	return out
}

func (s *Subnet) String() string {
	return s.Name
}

func (s *Subnet) allocate() (netip.Addr, error) {
	addr := s.next
	if !addr.IsValid() || !s.Prefix.Contains(addr) {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrAddressExhausted, s.Name)
	}
	s.next = addr.Next()
	return addr, nil
}

// Network is the mutable topology shared by every collaborator of one
// environment instance.
type Network struct {
	Name    string
	subnets []*Subnet
	hosts   []*Host
	byName  map[string]*Host
}

// New creates an empty network.
func New(name string) *Network {
	return &Network{
		Name:   name,
		byName: make(map[string]*Host),
	}
}

// AddSubnet registers a subnet with the given CIDR prefix.
func (n *Network) AddSubnet(name, prefix string) (*Subnet, error) {
	if _, err := n.Subnet(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubnet, name)
	}
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("network: subnet %s: %w", name, err)
	}
	p = p.Masked()
	s := &Subnet{
		Name:   name,
		Prefix: p,
		next:   p.Addr().Next(),
	}
	n.subnets = append(n.subnets, s)
	return s, nil
}

// AddHost adds a regular host built from ht to the named subnet.
func (n *Network) AddHost(name, subnet string, ht HostType) (*Host, error) {
	s, err := n.Subnet(subnet)
	if err != nil {
		return nil, err
	}
	return n.addHost(name, s, ht, ht.Decoy)
}

// CreateDecoyHost materializes a decoy on subnet and returns it.
func (n *Network) CreateDecoyHost(name string, subnet *Subnet, ht HostType) (*Host, error) {
	if subnet == nil {
		return nil, ErrSubnetNotFound
	}
	if !n.owns(subnet) {
		return nil, fmt.Errorf("%w: %s", ErrSubnetNotFound, subnet.Name)
	}
	ht.Decoy = true
	return n.addHost(name, subnet, ht, true)
}

func (n *Network) addHost(name string, s *Subnet, ht HostType, decoy bool) (*Host, error) {
	if name == "" {
		return nil, errors.New("network: host name is required")
	}
	if _, ok := n.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateHost, name)
	}
	addr, err := s.allocate()
	if err != nil {
		return nil, err
	}

	h := &Host{
		Name:     name,
		Subnet:   s,
		Type:     ht,
		Services: make([]*Service, 0, len(ht.Services)),
		Decoy:    decoy,
		Address:  addr,
	}
	for _, svc := range ht.Services {
		svc := svc
		svc.CVEs = append([]string(nil), svc.CVEs...)
		h.Services = append(h.Services, &svc)
	}

	s.hosts = append(s.hosts, h)
	n.hosts = append(n.hosts, h)
	n.byName[name] = h
	return h, nil
}

// RemoveHost deletes a host from the network.
func (n *Network) RemoveHost(name string) error {
	h, ok := n.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHostNotFound, name)
	}
	delete(n.byName, name)
	n.hosts = removeHost(n.hosts, h)
	h.Subnet.hosts = removeHost(h.Subnet.hosts, h)
	return nil
}

func removeHost(list []*Host, h *Host) []*Host {
	for i, candidate := range list {
		if candidate == h {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Isolate cuts a host off the network. It reports false if the host was
// already isolated.
func (n *Network) Isolate(h *Host) bool {
	if h.Isolated {
		return false
	}
	h.Isolated = true
	return true
}

// Restore reconnects an isolated host. It reports false if the host was not
// isolated.
func (n *Network) Restore(h *Host) bool {
	if !h.Isolated {
		return false
	}
	h.Isolated = false
	return true
}

// Reset drops every decoy and reconnects isolated hosts.
func (n *Network) Reset() {
	for _, h := range n.Hosts() {
		if h.Decoy {
			_ = n.RemoveHost(h.Name)
			continue
		}
		h.Isolated = false
	}
	for _, s := range n.subnets {
		s.next = s.Prefix.Addr().Next()
		for _, h := range s.hosts {
			if !h.Address.Less(s.next) {
				s.next = h.Address.Next()
			}
		}
	}
}

func (n *Network) owns(s *Subnet) bool {
	for _, candidate := range n.subnets {
		if candidate == s {
			return true
		}
	}
	return false
}

// Host looks up a host by name.
func (n *Network) Host(name string) (*Host, error) {
	h, ok := n.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, name)
	}
	return h, nil
}

// Subnet looks up a subnet by name.
func (n *Network) Subnet(name string) (*Subnet, error) {
	for _, s := range n.subnets {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSubnetNotFound, name)
}

// Hosts returns every host, decoys included, in insertion order.
func (n *Network) Hosts() []*Host {
	out := make([]*Host, len(n.hosts))
	copy(out, n.hosts)
	return out
}

// Subnets returns every subnet in insertion order.
func (n *Network) Subnets() []*Subnet {
	out := make([]*Subnet, len(n.subnets))
	copy(out, n.subnets)
	return out
}

func (n *Network) HostCount() int   { return len(n.hosts) }
func (n *Network) SubnetCount() int { return len(n.subnets) }

// NonDecoyHosts returns the real hosts in insertion order.
func (n *Network) NonDecoyHosts() []*Host {
	out := make([]*Host, 0, len(n.hosts))
	for _, h := range n.hosts {
		if !h.Decoy {
			out = append(out, h)
		}
	}
	return out
}

// UserHosts returns the real, non-server hosts an attacker may start from.
func (n *Network) UserHosts() []*Host {
	out := make([]*Host, 0, len(n.hosts))
	for _, h := range n.hosts {
		if !h.Decoy && !h.Type.IsServer() {
			out = append(out, h)
		}
	}
	return out
}

// Decoys returns the decoy hosts in creation order.
func (n *Network) Decoys() []*Host {
	out := make([]*Host, 0)
	for _, h := range n.hosts {
		if h.Decoy {
			out = append(out, h)
		}
	}
	return out
}
