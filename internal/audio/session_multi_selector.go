package audio

import (
	"fmt"

	"go.uber.org/zap"
)

// SelectedPreview decides whether a session entering Visible starts out
// selected.
type SelectedPreview func(*Session) bool

// SessionMultiSelector keeps a boolean selection vector parallel to the
// aggregator's Visible partition plus an independent cursor. The vector
// always has one slot per Visible session, in the same order.
type SessionMultiSelector struct {
	agg     *SessionAggregator
	states  []bool
	current int

	lockSelection                   bool
	lockCurrentIndex                bool
	lockCurrentIndexOnLockSelection bool

	previews []*SelectedPreview
	cancels  []func()
	logger   *zap.SugaredLogger

	selected       Signal[SessionEvent]
	deselected     Signal[SessionEvent]
	currentChanged Signal[SessionEvent]
}

// NewSessionMultiSelector returns a selector over agg with every slot
// unselected and no current item.
func NewSessionMultiSelector(agg *SessionAggregator, opts ...Option) *SessionMultiSelector {
	o := buildOptions(opts)
	m := &SessionMultiSelector{
		agg:                             agg,
		states:                          make([]bool, len(agg.visible)),
		current:                         -1,
		lockCurrentIndexOnLockSelection: o.lockCurrentIndexOnLockSelection,
		logger:                          o.logger.Named("session_multi_selector"),
	}
	m.cancels = []func(){
		agg.OnSessionAdded(m.onAdded),
		agg.OnSessionRemoved(m.onRemoved),
	}
	return m
}

// AddSelectedPreview registers a hook deciding the initial state of new
// slots. Any preview returning true selects the slot.
func (m *SessionMultiSelector) AddSelectedPreview(fn SelectedPreview) (cancel func()) {
	p := &fn
	m.previews = append(m.previews, p)
	return func() { m.previews = removePtr(m.previews, p) }
}

func (m *SessionMultiSelector) onAdded(e SessionEvent) {
	i := e.Index
	if i < 0 || i > len(m.states) {
		m.logger.Warnw("added index outside selection vector", "index", i, "len", len(m.states))
		i = len(m.states)
	}
	def := false
	for _, p := range m.previews {
		if (*p)(e.Session) {
			def = true
			break
		}
	}
	m.states = append(m.states, false)
	copy(m.states[i+1:], m.states[i:])
	m.states[i] = def
	if m.current >= i {
		m.current++
	}
	if def {
		m.selected.emit(SessionEvent{Session: e.Session, Index: i})
	}
}

func (m *SessionMultiSelector) onRemoved(e SessionEvent) {
	i := e.Index
	if i < 0 || i >= len(m.states) {
		m.logger.Warnw("removed index outside selection vector", "index", i, "len", len(m.states))
		return
	}
	was := m.states[i]
	m.states = append(m.states[:i], m.states[i+1:]...)
	if was {
		m.deselected.emit(SessionEvent{Session: e.Session, Index: i})
	}
	switch {
	case m.current == i:
		m.current = -1
		m.currentChanged.emit(SessionEvent{Index: -1})
	case m.current > i:
		m.current--
	}
}

// Len returns the number of slots, always len(Visible).
func (m *SessionMultiSelector) Len() int { return len(m.states) }

// SelectionStates returns a copy of the selection vector.
func (m *SessionMultiSelector) SelectionStates() []bool {
	out := make([]bool, len(m.states))
	copy(out, m.states)
	return out
}

// IsSelected reports the state of slot i; out-of-range slots read false.
func (m *SessionMultiSelector) IsSelected(i int) bool {
	return i >= 0 && i < len(m.states) && m.states[i]
}

// IsSessionSelected reports whether s is a selected Visible session.
func (m *SessionMultiSelector) IsSessionSelected(s *Session) bool {
	return m.IsSelected(m.agg.VisibleIndex(s))
}

// SelectedSessions returns the selected sessions in Visible order.
func (m *SessionMultiSelector) SelectedSessions() []*Session {
	var out []*Session
	for i, s := range m.agg.visible {
		if i < len(m.states) && m.states[i] {
			out = append(out, s)
		}
	}
	return out
}

// SetSessionSelectedIndex sets slot i. Invalid indices return
// ErrIndexOutOfRange; a locked selection or an unchanged value is a no-op.
func (m *SessionMultiSelector) SetSessionSelectedIndex(i int, v bool) error {
	if i < 0 || i >= len(m.states) {
		return fmt.Errorf("selecting slot %d of %d: %w", i, len(m.states), ErrIndexOutOfRange)
	}
	if m.lockSelection || m.states[i] == v {
		return nil
	}
	m.states[i] = v
	e := SessionEvent{Session: m.agg.visible[i], Index: i}
	if v {
		m.selected.emit(e)
	} else {
		m.deselected.emit(e)
	}
	return nil
}

// SetSessionSelected sets the slot of s. Sessions outside Visible return
// ErrSessionNotFound.
func (m *SessionMultiSelector) SetSessionSelected(s *Session, v bool) error {
	i := m.agg.VisibleIndex(s)
	if i < 0 {
		return fmt.Errorf("selecting %v: %w", s, ErrSessionNotFound)
	}
	return m.SetSessionSelectedIndex(i, v)
}

// SetAllSelectionStates sets every slot one by one; each change fires its
// own event.
func (m *SessionMultiSelector) SetAllSelectionStates(v bool) {
	for i := 0; i < len(m.states); i++ {
		_ = m.SetSessionSelectedIndex(i, v)
	}
}

// CurrentIndex is the cursor position, -1 when unset.
func (m *SessionMultiSelector) CurrentIndex() int { return m.current }

// CurrentSession returns the session under the cursor, or nil.
func (m *SessionMultiSelector) CurrentSession() *Session {
	if m.current < 0 || m.current >= len(m.agg.visible) {
		return nil
	}
	return m.agg.visible[m.current]
}

// SetCurrentIndex moves the cursor; -1 unsets it. Invalid indices return
// ErrIndexOutOfRange; a locked cursor is a no-op.
func (m *SessionMultiSelector) SetCurrentIndex(i int) error {
	if i < -1 || i >= len(m.states) {
		return fmt.Errorf("moving cursor to %d of %d: %w", i, len(m.states), ErrIndexOutOfRange)
	}
	m.moveCurrent(i)
	return nil
}

// SetCurrentSession moves the cursor to s.
func (m *SessionMultiSelector) SetCurrentSession(s *Session) error {
	i := m.agg.VisibleIndex(s)
	if i < 0 {
		return fmt.Errorf("moving cursor to %v: %w", s, ErrSessionNotFound)
	}
	return m.SetCurrentIndex(i)
}

// IncrementCurrentIndex moves the cursor down, wrapping to the top. An
// unset cursor moves to the first item.
func (m *SessionMultiSelector) IncrementCurrentIndex() {
	n := len(m.states)
	if n == 0 {
		return
	}
	if m.current < 0 {
		m.moveCurrent(0)
		return
	}
	m.moveCurrent((m.current + 1) % n)
}

// DecrementCurrentIndex moves the cursor up, wrapping to the bottom. An
// unset cursor moves to the last item.
func (m *SessionMultiSelector) DecrementCurrentIndex() {
	n := len(m.states)
	if n == 0 {
		return
	}
	if m.current < 0 {
		m.moveCurrent(n - 1)
		return
	}
	m.moveCurrent((m.current - 1 + n) % n)
}

func (m *SessionMultiSelector) UnsetCurrentIndex() { m.moveCurrent(-1) }

func (m *SessionMultiSelector) moveCurrent(i int) {
	if m.cursorLocked() || i == m.current {
		return
	}
	m.current = i
	m.currentChanged.emit(SessionEvent{Session: m.CurrentSession(), Index: i})
}

// SelectCurrent selects the slot under the cursor.
func (m *SessionMultiSelector) SelectCurrent() {
	if m.current >= 0 {
		_ = m.SetSessionSelectedIndex(m.current, true)
	}
}

// DeselectCurrent deselects the slot under the cursor.
func (m *SessionMultiSelector) DeselectCurrent() {
	if m.current >= 0 {
		_ = m.SetSessionSelectedIndex(m.current, false)
	}
}

// ToggleCurrent flips the slot under the cursor.
func (m *SessionMultiSelector) ToggleCurrent() {
	if m.current >= 0 && m.current < len(m.states) {
		_ = m.SetSessionSelectedIndex(m.current, !m.states[m.current])
	}
}

func (m *SessionMultiSelector) LockSelection() bool        { return m.lockSelection }
func (m *SessionMultiSelector) SetLockSelection(lock bool) { m.lockSelection = lock }

func (m *SessionMultiSelector) LockCurrentIndex() bool        { return m.lockCurrentIndex }
func (m *SessionMultiSelector) SetLockCurrentIndex(lock bool) { m.lockCurrentIndex = lock }

func (m *SessionMultiSelector) LockCurrentIndexOnLockSelection() bool {
	return m.lockCurrentIndexOnLockSelection
}

func (m *SessionMultiSelector) SetLockCurrentIndexOnLockSelection(v bool) {
	m.lockCurrentIndexOnLockSelection = v
}

func (m *SessionMultiSelector) cursorLocked() bool {
	return m.lockCurrentIndex || (m.lockCurrentIndexOnLockSelection && m.lockSelection)
}

// OnSessionSelected subscribes to slots turning selected.
func (m *SessionMultiSelector) OnSessionSelected(fn func(SessionEvent)) (cancel func()) {
	return m.selected.Subscribe(fn)
}

// OnSessionDeselected subscribes to slots turning unselected, including
// selected sessions leaving Visible.
func (m *SessionMultiSelector) OnSessionDeselected(fn func(SessionEvent)) (cancel func()) {
	return m.deselected.Subscribe(fn)
}

// OnCurrentSessionChanged subscribes to cursor moves.
func (m *SessionMultiSelector) OnCurrentSessionChanged(fn func(SessionEvent)) (cancel func()) {
	return m.currentChanged.Subscribe(fn)
}

// Close stops observing the aggregator.
func (m *SessionMultiSelector) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}
