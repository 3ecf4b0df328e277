package detector

import (
	"github.com/Mindburn-Labs/decoyrange/pkg/alert"
	"github.com/Mindburn-Labs/decoyrange/pkg/network"
)

// HistoryObserver keeps the defender's view of the network: a vector of
// length 2*N over the hosts captured at construction. Entry i is 1 when host
// i was alerted on this tick; entry N+i stays 1 once host i has ever been
// alerted in the episode. Hosts created later, such as decoys, have no slot.
type HistoryObserver struct {
	index map[*network.Host]int
	obs   []float64
}

func NewHistoryObserver(hosts []*network.Host) *HistoryObserver {
	idx := make(map[*network.Host]int, len(hosts))
	for i, h := range hosts {
		idx[h] = i
	}
	return &HistoryObserver{index: idx, obs: make([]float64, 2*len(hosts))}
}

// Size is the length of the observation vector.
func (o *HistoryObserver) Size() int { return len(o.obs) }

// Observe folds this tick's noticed alerts into the vector and returns a copy.
func (o *HistoryObserver) Observe(alerts []*alert.Alert) []float64 {
	n := len(o.index)
	for i := 0; i < n; i++ {
		o.obs[i] = 0
	}
	for _, a := range alerts {
		for _, h := range a.Destinations() {
			i, ok := o.index[h]
			if !ok {
				continue
			}
			o.obs[i] = 1
			o.obs[n+i] = 1
		}
	}
	return o.Vector()
}

// Reset zeroes the vector and returns a copy.
func (o *HistoryObserver) Reset() []float64 {
	clear(o.obs)
	return o.Vector()
}

// Vector returns a copy of the current observation.
func (o *HistoryObserver) Vector() []float64 {
	return append([]float64(nil), o.obs...)
}
