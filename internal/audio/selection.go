package audio

import "fmt"

// SelectionEvent reports a single-selector change. Selected is nil and
// Index is -1 after a deselection.
type SelectionEvent[T comparable] struct {
	Selected T
	Index    int
}

// singleSelection is the state shared by DeviceSelector and
// SessionSelector: a nullable pointer over a list owned elsewhere, with a
// lock that turns every mutation into a silent no-op.
type singleSelection[T comparable] struct {
	selected T
	locked   bool
	items    func() []T

	changed     Signal[SelectionEvent[T]]
	lockChanged Signal[bool]
}

func (s *singleSelection[T]) index(v T) int {
	var zero T
	if v == zero {
		return -1
	}
	for i, item := range s.items() {
		if item == v {
			return i
		}
	}
	return -1
}

// set assigns v and announces it. Callers check the lock.
func (s *singleSelection[T]) set(v T) bool {
	var zero T
	if v != zero && s.index(v) < 0 {
		return false
	}
	if v == s.selected {
		return false
	}
	s.selected = v
	s.changed.emit(SelectionEvent[T]{Selected: v, Index: s.index(v)})
	return true
}

func (s *singleSelection[T]) setSelected(v T) bool {
	if s.locked {
		return false
	}
	return s.set(v)
}

// setIndex range-checks i before the lock, so a locked selector still
// reports a bad index.
func (s *singleSelection[T]) setIndex(i int) error {
	items := s.items()
	if i < -1 || i >= len(items) {
		return fmt.Errorf("selecting index %d of %d: %w", i, len(items), ErrIndexOutOfRange)
	}
	if s.locked {
		return nil
	}
	if i == -1 {
		var zero T
		s.set(zero)
		return nil
	}
	s.set(items[i])
	return nil
}

func (s *singleSelection[T]) step(delta int) {
	if s.locked {
		return
	}
	items := s.items()
	n := len(items)
	if n == 0 {
		return
	}
	i := s.index(s.selected)
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = n - 1
	default:
		i = ((i+delta)%n + n) % n
	}
	s.set(items[i])
}

func (s *singleSelection[T]) setLocked(v bool) {
	if s.locked == v {
		return
	}
	s.locked = v
	s.lockChanged.emit(v)
}

// clearIfSelected drops a removed entity. It bypasses the lock so a
// removed entity is never left selected.
func (s *singleSelection[T]) clearIfSelected(v T) {
	var zero T
	if v == zero || s.selected != v {
		return
	}
	s.selected = zero
	s.changed.emit(SelectionEvent[T]{Selected: zero, Index: -1})
}
