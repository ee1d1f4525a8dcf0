package audio

import (
	"strings"

	"go.uber.org/zap"
)

// SessionTarget is an externally owned descriptor of the session a
// SessionSelector should point at, typically persisted by the caller.
// Identity is a loose identity string; InstanceID, when known, wins.
type SessionTarget struct {
	identity   string
	instanceID string
	changed    Signal[*SessionTarget]
}

// NewSessionTarget returns a target for identity.
func NewSessionTarget(identity string) *SessionTarget {
	return &SessionTarget{identity: strings.TrimSpace(identity)}
}

func (t *SessionTarget) Identity() string   { return t.identity }
func (t *SessionTarget) InstanceID() string { return t.instanceID }

// Empty reports whether the target names nothing.
func (t *SessionTarget) Empty() bool { return t.identity == "" && t.instanceID == "" }

// Set updates the descriptor and notifies subscribers if it changed.
func (t *SessionTarget) Set(identity, instanceID string) {
	identity = strings.TrimSpace(identity)
	if identity == t.identity && instanceID == t.instanceID {
		return
	}
	t.identity, t.instanceID = identity, instanceID
	t.changed.emit(t)
}

// OnChanged subscribes to descriptor changes.
func (t *SessionTarget) OnChanged(fn func(*SessionTarget)) (cancel func()) {
	return t.changed.Subscribe(fn)
}

// SessionSelector is a single-selection pointer over the aggregator's
// Visible partition. When nothing is selected, reading Selected resolves
// the bound SessionTarget lazily and caches the match.
type SessionSelector struct {
	agg     *SessionAggregator
	target  *SessionTarget
	sel     singleSelection[*Session]
	quiet   suppressor
	// stale is set when a target change arrived while locked.
	stale   bool
	cancels []func()
	logger  *zap.SugaredLogger
}

// NewSessionSelector returns a selector over agg. WithTarget binds an
// external descriptor.
func NewSessionSelector(agg *SessionAggregator, opts ...Option) *SessionSelector {
	o := buildOptions(opts)
	s := &SessionSelector{
		agg:    agg,
		target: o.target,
		logger: o.logger.Named("session_selector"),
	}
	s.sel.items = agg.Visible
	s.cancels = append(s.cancels, agg.OnSessionRemoved(func(e SessionEvent) {
		s.sel.clearIfSelected(e.Session)
	}))
	if s.target != nil {
		s.cancels = append(s.cancels, s.target.OnChanged(s.onTargetChanged))
	}
	return s
}

// Target returns the bound descriptor, or nil.
func (s *SessionSelector) Target() *SessionTarget { return s.target }

// Selected returns the selected session. With no selection it tries the
// target; a successful resolution is cached without a change event.
func (s *SessionSelector) Selected() *Session {
	if s.sel.selected == nil {
		if found := s.resolve(); found != nil {
			s.sel.selected = found
		}
	}
	return s.sel.selected
}

// SelectedIndex is the Visible index of Selected, or -1.
func (s *SessionSelector) SelectedIndex() int { return s.sel.index(s.Selected()) }

// SetSelected selects v (nil deselects) and writes its identity back to
// the target. Locked selectors and sessions outside Visible do nothing.
func (s *SessionSelector) SetSelected(v *Session) bool {
	if !s.sel.setSelected(v) {
		return false
	}
	s.writeBack(v)
	return true
}

// SetSelectedIndex selects by Visible position; -1 deselects.
func (s *SessionSelector) SetSelectedIndex(i int) error {
	before := s.sel.selected
	if err := s.sel.setIndex(i); err != nil {
		return err
	}
	if s.sel.selected != before {
		s.writeBack(s.sel.selected)
	}
	return nil
}

func (s *SessionSelector) SelectNext()     { s.stepAndWrite(1) }
func (s *SessionSelector) SelectPrevious() { s.stepAndWrite(-1) }
func (s *SessionSelector) Deselect()       { s.SetSelected(nil) }

// SelectDefault resolves the target again, falling back to the first
// visible session.
func (s *SessionSelector) SelectDefault() bool {
	if s.sel.locked {
		return false
	}
	found := s.resolve()
	if found == nil {
		visible := s.agg.Visible()
		if len(visible) == 0 {
			return false
		}
		found = visible[0]
	}
	return s.SetSelected(found)
}

func (s *SessionSelector) LockSelection() bool        { return s.sel.locked }
// SetLockSelection locks or unlocks the selection. Unlocking applies a
// target change that arrived while locked.
func (s *SessionSelector) SetLockSelection(lock bool) {
	s.sel.setLocked(lock)
	if !lock && s.stale {
		s.stale = false
		s.onTargetChanged(s.target)
	}
}

// OnSelectedChanged subscribes to selection changes.
func (s *SessionSelector) OnSelectedChanged(fn func(SelectionEvent[*Session])) (cancel func()) {
	return s.sel.changed.Subscribe(fn)
}

// OnLockSelectionChanged subscribes to lock changes.
func (s *SessionSelector) OnLockSelectionChanged(fn func(bool)) (cancel func()) {
	return s.sel.lockChanged.Subscribe(fn)
}

// Close stops observing the aggregator and the target.
func (s *SessionSelector) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}

func (s *SessionSelector) stepAndWrite(delta int) {
	before := s.Selected()
	s.sel.step(delta)
	if s.sel.selected != before {
		s.writeBack(s.sel.selected)
	}
}

// resolve looks the target up in Visible: instance id first, then the
// loose identity.
func (s *SessionSelector) resolve() *Session {
	if s.target == nil || s.target.Empty() {
		return nil
	}
	if found := s.agg.FindSessionWithInstanceID(s.target.instanceID, false); found != nil {
		return found
	}
	return s.agg.FindSessionWithSimilarIdentifier(s.target.identity, false)
}

func (s *SessionSelector) onTargetChanged(*SessionTarget) {
	if s.quiet.active() {
		return
	}
	if s.sel.locked {
		s.stale = true
		return
	}
	found := s.resolve()
	s.logger.Debugw("target changed", "identity", s.target.identity, "resolved", found != nil)
	s.sel.set(found)
}

func (s *SessionSelector) writeBack(v *Session) {
	if s.target == nil {
		return
	}
	exit := s.quiet.enter()
	defer exit()
	if v == nil {
		s.target.Set("", "")
		return
	}
	s.target.Set(v.Identity(), v.instanceID)
}
