package compositor

import "fmt"

// Ref is a generational reference into a SlotMap: an index plus the
// generation the slot held when the reference was taken. Accessing a
// stale Ref (its slot was freed and reused) fails instead of silently
// resolving to the wrong object — this is how cyclic references like
// surface-to-parent are resolved without an owning reference cycle.
type Ref struct {
	index      int
	generation uint32
}

// IsZero reports whether r is the zero Ref, used as a "no parent" sentinel.
func (r Ref) IsZero() bool { return r.index == 0 && r.generation == 0 }

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// SlotMap is a generational slot map: Insert returns a Ref good until the
// slot is Removed, at which point the generation bumps and old Refs fail
// Get/Remove instead of colliding with whatever is inserted next.
type SlotMap[T any] struct {
	slots []slot[T]
	free  []int
}

// NewSlotMap creates an empty SlotMap. Index 0 is permanently reserved
// and never handed out by Insert, so the zero Ref can serve as an
// unambiguous "no reference" sentinel.
func NewSlotMap[T any]() *SlotMap[T] {
	return &SlotMap[T]{slots: []slot[T]{{}}}
}

// Insert stores value in a free slot (or a new one) and returns its Ref.
func (m *SlotMap[T]) Insert(value T) Ref {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[idx].value = value
		m.slots[idx].occupied = true
		return Ref{index: idx, generation: m.slots[idx].generation}
	}
	m.slots = append(m.slots, slot[T]{value: value, occupied: true})
	return Ref{index: len(m.slots) - 1, generation: 0}
}

// Get resolves ref to its value, returning false if the slot has been
// freed or reused (generation mismatch).
func (m *SlotMap[T]) Get(ref Ref) (T, bool) {
	var zero T
	if ref.index < 0 || ref.index >= len(m.slots) {
		return zero, false
	}
	s := &m.slots[ref.index]
	if !s.occupied || s.generation != ref.generation {
		return zero, false
	}
	return s.value, true
}

// GetMut resolves ref to a pointer into the slot for in-place mutation.
func (m *SlotMap[T]) GetMut(ref Ref) (*T, bool) {
	if ref.index < 0 || ref.index >= len(m.slots) {
		return nil, false
	}
	s := &m.slots[ref.index]
	if !s.occupied || s.generation != ref.generation {
		return nil, false
	}
	return &s.value, true
}

// Remove frees ref's slot, bumping its generation so any held copies of
// ref become invalid. Returns false if ref was already stale.
func (m *SlotMap[T]) Remove(ref Ref) bool {
	if ref.index < 0 || ref.index >= len(m.slots) {
		return false
	}
	s := &m.slots[ref.index]
	if !s.occupied || s.generation != ref.generation {
		return false
	}
	var zero T
	s.value = zero
	s.occupied = false
	s.generation++
	m.free = append(m.free, ref.index)
	return true
}

// Each calls fn for every occupied slot's Ref and value, in index order.
func (m *SlotMap[T]) Each(fn func(Ref, T)) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.occupied {
			fn(Ref{index: i, generation: s.generation}, s.value)
		}
	}
}

// Len returns the number of occupied slots (excluding the reserved index 0).
func (m *SlotMap[T]) Len() int {
	return len(m.slots) - 1 - len(m.free)
}

func (r Ref) String() string { return fmt.Sprintf("ref(%d@%d)", r.index, r.generation) }
