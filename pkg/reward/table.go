// Package reward turns blue and red outcomes into the per-tick scalar
// reward.
//
// Records for the current tick are staged. Compute reads the committed
// recurring effects plus the staged records; Commit folds the staged tick
// into the committed state and Rollback discards it, so an aborted tick
// never leaks into the next one.
package reward

import (
	"errors"
	"sort"

	"github.com/Mindburn-Labs/decoyrange/pkg/rangeerr"
)

// ErrUnknownAction is returned when a record names an action the reward
// tables do not know.
var ErrUnknownAction = errors.New("reward: unknown action")

// Entry is the reward pair of one blue action.
type Entry struct {
	Immediate float64 `json:"immediate"`
	Recurring float64 `json:"recurring"`
}

// Named pairs an action display name with its entry.
type Named struct {
	Name string
	Entry
}

// Table is the read-only blue reward table keyed by display name.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a table. A repeated name is a setup failure.
func NewTable(entries []Named) (*Table, error) {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			return nil, rangeerr.Invalid("reward entry without a name")
		}
		if _, ok := t.entries[e.Name]; ok {
			return nil, rangeerr.Duplicate(e.Name)
		}
		t.entries[e.Name] = e.Entry
	}
	return t, nil
}

func (t *Table) Lookup(name string) (Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

func (t *Table) Len() int { return len(t.entries) }

// Names lists the table's actions in sorted order.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.entries))
	for name := range t.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the table.
func (t *Table) Map() map[string]Entry {
	out := make(map[string]Entry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}
