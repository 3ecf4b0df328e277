package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrExhausted is returned by a Replay sequence that has handed out every
// seed it was given.
var ErrExhausted = errors.New("seed: sequence exhausted")

// Sequence yields one seed per episode.
type Sequence interface {
	Next() (int64, error)
}

// Replay hands out a fixed list of seeds, in order.
type Replay struct {
	seeds []int64
	pos   int
}

func NewReplay(seeds ...int64) *Replay {
	return &Replay{seeds: append([]int64(nil), seeds...)}
}

func (r *Replay) Next() (int64, error) {
	if r.pos >= len(r.seeds) {
		return 0, fmt.Errorf("%w after %d seeds", ErrExhausted, len(r.seeds))
	}
	s := r.seeds[r.pos]
	r.pos++
	return s, nil
}

// Remaining is the number of seeds not yet handed out.
func (r *Replay) Remaining() int { return len(r.seeds) - r.pos }

// Derived expands a root seed into an unbounded stream with HKDF-SHA256.
// Episode i gets the i-th 8-byte block of the HKDF output keyed by the root
// seed and salted with label.
type Derived struct {
	reader io.Reader
}

func NewDerived(root int64, label string) *Derived {
	var ikm [8]byte
	binary.BigEndian.PutUint64(ikm[:], uint64(root)) //nolint:gosec // two's complement is intended
	return &Derived{reader: hkdf.New(sha256.New, ikm[:], []byte("decoyrange-episode-seeds"), []byte(label))}
}

// Next returns the next derived seed. HKDF caps its output at 255 hash
// blocks, so a stream yields at most 1020 seeds before ErrExhausted.
func (d *Derived) Next() (int64, error) {
	var block [8]byte
	if _, err := io.ReadFull(d.reader, block[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrExhausted, err)
	}
	return int64(binary.BigEndian.Uint64(block[:]) >> 1), nil //nolint:gosec // shifted into int64 range
}
