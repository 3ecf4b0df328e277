// Package shared holds the per-episode state that defensive actions read and
// write across ticks.
//
// The runtime owns every container. A handler sees only the containers it
// declared at registration, and only by reference. Containers are emptied at
// episode reset.
package shared

// Container is the capability every shared-state container implements.
type Container interface {
	// Clear empties the container in place. References held by handlers stay valid.
	Clear()
	Len() int
}

// List is an ordered, append-only-by-convention sequence.
type List struct {
	items []any
}

func NewList() *List {
	return &List{items: make([]any, 0)}
}

func (l *List) Append(v any) {
	l.items = append(l.items, v)
}

// At returns the i-th element.
func (l *List) At(i int) (any, bool) {
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	return l.items[i], true
}

// RemoveAt deletes and returns the i-th element.
func (l *List) RemoveAt(i int) (any, bool) {
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	v := l.items[i]
	l.items = append(l.items[:i:i], l.items[i+1:]...)
	return v, true
}

// Items returns a copy of the elements.
func (l *List) Items() []any {
	return append([]any(nil), l.items...)
}

func (l *List) Len() int { return len(l.items) }

func (l *List) Clear() { l.items = l.items[:0] }

// Set is an unordered collection of comparable values.
type Set struct {
	items map[any]struct{}
}

func NewSet() *Set {
	return &Set{items: make(map[any]struct{})}
}

func (s *Set) Add(v any) {
	s.items[v] = struct{}{}
}

func (s *Set) Has(v any) bool {
	_, ok := s.items[v]
	return ok
}

// Remove reports whether v was present.
func (s *Set) Remove(v any) bool {
	if _, ok := s.items[v]; !ok {
		return false
	}
	delete(s.items, v)
	return true
}

func (s *Set) Len() int { return len(s.items) }

func (s *Set) Clear() { clear(s.items) }

// Map is a string-keyed mapping.
type Map struct {
	items map[string]any
}

func NewMap() *Map {
	return &Map{items: make(map[string]any)}
}

func (m *Map) Put(k string, v any) {
	m.items[k] = v
}

func (m *Map) Get(k string) (any, bool) {
	v, ok := m.items[k]
	return v, ok
}

func (m *Map) Delete(k string) {
	delete(m.items, k)
}

func (m *Map) Len() int { return len(m.items) }

func (m *Map) Clear() { clear(m.items) }
