// Package seed supplies the randomness of a run: per-episode seed sequences
// handed to environment construction, and a deterministic PRNG that every
// stochastic collaborator draws from.
package seed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// PRNG is an HMAC-SHA256 counter generator. The same seed and label always
// produce the same stream.
type PRNG struct {
	mu      sync.Mutex
	key     []byte
	counter uint64
}

// NewPRNG keys a generator from seed and label.
func NewPRNG(seed int64, label string) *PRNG {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(seed)) //nolint:gosec // two's complement is intended
	return &PRNG{key: derive(raw[:], label)}
}

// Child returns an independent generator keyed from this one's key and
// label. It does not advance the parent.
func (p *PRNG) Child(label string) *PRNG {
	return &PRNG{key: derive(p.key, label)}
}

func derive(parent []byte, label string) []byte {
	h := hmac.New(sha256.New, parent)
	h.Write([]byte(label))
	return h.Sum(nil)
}

// Uint64 returns the next value of the stream.
func (p *PRNG) Uint64() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counter++
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], p.counter)

	h := hmac.New(sha256.New, p.key)
	h.Write(counterBytes[:])
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// Float64 returns a value in [0, 1).
func (p *PRNG) Float64() float64 {
	return float64(p.Uint64()>>11) / (1 << 53)
}

// Intn returns a value in [0, n). It returns 0 when n <= 0.
func (p *PRNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p.Uint64() % uint64(n)) //nolint:gosec // Safe modulo
}

// Bernoulli reports true with probability prob.
func (p *PRNG) Bernoulli(prob float64) bool {
	switch {
	case prob <= 0:
		return false
	case prob >= 1:
		return true
	}
	return p.Float64() < prob
}
