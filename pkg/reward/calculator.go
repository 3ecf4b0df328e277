package reward

import (
	"errors"
	"fmt"
)

// Breakdown exposes each term of a tick's reward before summation.
type Breakdown struct {
	BlueImmediate   float64 `json:"blue_immediate"`
	Recurring       float64 `json:"recurring"`
	RedBase         float64 `json:"red_base"`
	DecoyAdjustment float64 `json:"decoy_adjustment"`
}

// Total is the scalar reward.
func (b Breakdown) Total() float64 {
	return b.BlueImmediate + b.Recurring + b.RedBase + b.DecoyAdjustment
}

type recurring struct {
	id     string
	amount float64
}

type redRecord struct {
	base       float64
	adjustment float64
}

// staged holds one tick's records until Commit or Rollback.
type staged struct {
	immediate  []float64
	registered []recurring
	retracted  map[string]struct{}
	red        []redRecord
}

func newStaged() staged {
	return staged{retracted: make(map[string]struct{})}
}

// Calculator is the reward accounting of one environment instance. It is
// not safe for concurrent use.
type Calculator struct {
	blue  *Table
	red   map[string]float64
	decoy *decoyAdjuster

	// Committed recurring effects in registration order.
	active []recurring
	tick   staged
}

// NewCalculator compiles policy and returns a calculator over the blue table
// and the red reward map.
func NewCalculator(blue *Table, red map[string]float64, policy Policy) (*Calculator, error) {
	if blue == nil {
		return nil, errors.New("reward: nil blue table")
	}
	adj, err := policy.compile()
	if err != nil {
		return nil, err
	}
	redCopy := make(map[string]float64, len(red))
	for k, v := range red {
		redCopy[k] = v
	}
	return &Calculator{
		blue:  blue,
		red:   redCopy,
		decoy: adj,
		tick:  newStaged(),
	}, nil
}

// RecordBlue stages the outcome of the tick's blue action. A successful
// action earns its immediate reward. A successful recurring action with a
// correlation id starts earning its recurring reward from this tick on,
// until the id is retracted.
func (c *Calculator) RecordBlue(name, correlationID string, succeeded, isRecurring bool) error {
	entry, ok := c.blue.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: blue %q", ErrUnknownAction, name)
	}
	if !succeeded {
		return nil
	}
	c.tick.immediate = append(c.tick.immediate, entry.Immediate)
	if isRecurring && correlationID != "" && !c.isActive(correlationID) {
		c.tick.registered = append(c.tick.registered, recurring{id: correlationID, amount: entry.Recurring})
	}
	return nil
}

// RecordRed stages the attacker's action reward and, when the target was a
// decoy, the decoy-interaction adjustment as a separate term.
func (c *Calculator) RecordRed(name string, attackedDecoy bool) error {
	base, ok := c.red[name]
	if !ok {
		return fmt.Errorf("%w: red %q", ErrUnknownAction, name)
	}
	rec := redRecord{base: base}
	if attackedDecoy {
		adj, err := c.decoy.adjust(name, base)
		if err != nil {
			return err
		}
		rec.adjustment = adj
	}
	c.tick.red = append(c.tick.red, rec)
	return nil
}

// Retract stages the end of a recurring effect. Unknown ids are ignored.
func (c *Calculator) Retract(correlationID string) {
	if correlationID == "" {
		return
	}
	c.tick.retracted[correlationID] = struct{}{}
}

// Breakdown returns the reward terms for the committed state plus the staged
// tick. It does not mutate anything.
func (c *Calculator) Breakdown() Breakdown {
	var b Breakdown
	for _, v := range c.tick.immediate {
		b.BlueImmediate += v
	}
	for _, r := range c.active {
		if _, gone := c.tick.retracted[r.id]; !gone {
			b.Recurring += r.amount
		}
	}
	for _, r := range c.tick.registered {
		if _, gone := c.tick.retracted[r.id]; !gone {
			b.Recurring += r.amount
		}
	}
	for _, r := range c.tick.red {
		b.RedBase += r.base
		b.DecoyAdjustment += r.adjustment
	}
	return b
}

// Compute is the scalar reward of the current tick. Repeated calls without
// an intervening record return the same value.
func (c *Calculator) Compute() float64 {
	return c.Breakdown().Total()
}

// Commit closes the tick: staged registrations become active, staged
// retractions end their effects, and per-tick terms are cleared.
func (c *Calculator) Commit() {
	c.active = append(c.active, c.tick.registered...)
	if len(c.tick.retracted) > 0 {
		kept := c.active[:0]
		for _, r := range c.active {
			if _, gone := c.tick.retracted[r.id]; !gone {
				kept = append(kept, r)
			}
		}
		c.active = kept
	}
	c.tick = newStaged()
}

// Rollback discards everything staged since the last Commit.
func (c *Calculator) Rollback() {
	c.tick = newStaged()
}

// Reset clears all recurring bookkeeping. Called at episode start.
func (c *Calculator) Reset() {
	c.active = nil
	c.tick = newStaged()
}

// ActiveRecurring lists the committed recurring correlation ids in
// registration order.
func (c *Calculator) ActiveRecurring() []string {
	out := make([]string, 0, len(c.active))
	for _, r := range c.active {
		out = append(out, r.id)
	}
	return out
}

func (c *Calculator) isActive(id string) bool {
	for _, r := range c.active {
		if r.id == id {
			return true
		}
	}
	for _, r := range c.tick.registered {
		if r.id == id {
			return true
		}
	}
	return false
}
