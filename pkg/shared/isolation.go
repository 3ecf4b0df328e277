package shared

import (
	"fmt"

	"github.com/Mindburn-Labs/decoyrange/pkg/network"
)

// KindIsolation is the container kind name of IsolationLedger.
const KindIsolation = "decoy_isolation"

// IsolationLedger caps the number of isolation decoys per subnet.
type IsolationLedger struct {
	maxPerSubnet int
	bySubnet     map[*network.Subnet][]*network.Host
}

// NewIsolationLedger is the Constructor for KindIsolation. It reads the
// optional "max_per_subnet" argument (default 1).
func NewIsolationLedger(args map[string]any) (Container, error) {
	limit := 1
	if v, ok := args["max_per_subnet"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("max_per_subnet: %w", err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("max_per_subnet must be > 0, got %d", n)
		}
		limit = n
	}
	return &IsolationLedger{
		maxPerSubnet: limit,
		bySubnet:     make(map[*network.Subnet][]*network.Host),
	}, nil
}

// HasRoom reports whether subnet can take another decoy.
func (l *IsolationLedger) HasRoom(subnet *network.Subnet) bool {
	return len(l.bySubnet[subnet]) < l.maxPerSubnet
}

// Admit records decoy on subnet if there is room.
func (l *IsolationLedger) Admit(decoy *network.Host, subnet *network.Subnet) bool {
	if !l.HasRoom(subnet) {
		return false
	}
	l.bySubnet[subnet] = append(l.bySubnet[subnet], decoy)
	return true
}

// Release frees decoy's slot. It reports whether decoy was admitted.
func (l *IsolationLedger) Release(decoy *network.Host) bool {
	for subnet, hosts := range l.bySubnet {
		for i, h := range hosts {
			if h != decoy {
				continue
			}
			hosts = append(hosts[:i:i], hosts[i+1:]...)
			if len(hosts) == 0 {
				delete(l.bySubnet, subnet)
			} else {
				l.bySubnet[subnet] = hosts
			}
			return true
		}
	}
	return false
}

// Decoys returns the decoys admitted on subnet.
func (l *IsolationLedger) Decoys(subnet *network.Subnet) []*network.Host {
	return append([]*network.Host(nil), l.bySubnet[subnet]...)
}

func (l *IsolationLedger) MaxPerSubnet() int { return l.maxPerSubnet }

func (l *IsolationLedger) Len() int {
	n := 0
	for _, hosts := range l.bySubnet {
		n += len(hosts)
	}
	return n
}

func (l *IsolationLedger) Clear() { clear(l.bySubnet) }

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}
