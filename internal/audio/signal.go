package audio

// Signal is a synchronous multicast notification. Handlers run on the
// emitting goroutine in subscription order. A handler may cancel itself or
// others while an emit is in flight; cancelled handlers are not called again.
type Signal[T any] struct {
	subs []*subscription[T]
}

type subscription[T any] struct {
	fn     func(T)
	active bool
}

// Subscribe registers fn and returns a function that removes it.
// The returned cancel func is safe to call more than once.
func (s *Signal[T]) Subscribe(fn func(T)) (cancel func()) {
	sub := &subscription[T]{fn: fn, active: true}
	s.subs = append(s.subs, sub)
	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		for i, other := range s.subs {
			if other == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of live subscriptions.
func (s *Signal[T]) Len() int { return len(s.subs) }

func (s *Signal[T]) emit(v T) {
	if len(s.subs) == 0 {
		return
	}
	snapshot := make([]*subscription[T], len(s.subs))
	copy(snapshot, s.subs)
	for _, sub := range snapshot {
		if sub.active {
			sub.fn(v)
		}
	}
}

// suppressor is a counted scope during which a component ignores the
// change notifications its own writes cause.
type suppressor struct {
	depth int
}

// enter opens a suppression scope. The returned func closes it.
func (s *suppressor) enter() (exit func()) {
	s.depth++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		s.depth--
	}
}

func (s *suppressor) active() bool { return s.depth > 0 }
