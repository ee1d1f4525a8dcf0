package supervisor

import (
	"errors"
	"fmt"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/events"
)

// DefaultVolumeStep is the percent a volume action moves when neither the
// command nor the configuration says otherwise.
const DefaultVolumeStep = 2

// volumeTarget is anything with percent volume and a mute toggle.
type volumeTarget interface {
	AdjustVolumePercent(delta int) error
	ToggleMute() error
}

// targets returns what a volume action applies to, in order of precedence:
// the multi-selected sessions, the selector's session, the selected device.
func (m *Mixer) targets() []volumeTarget {
	if sel := m.Multi.SelectedSessions(); len(sel) > 0 {
		out := make([]volumeTarget, len(sel))
		for i, s := range sel {
			out[i] = s
		}
		return out
	}
	if s := m.Selector.Selected(); s != nil {
		return []volumeTarget{s}
	}
	if d := m.DeviceSelector.Selected(); d != nil {
		return []volumeTarget{d}
	}
	return nil
}

func (m *Mixer) eachTarget(fn func(volumeTarget) error) error {
	targets := m.targets()
	if len(targets) == 0 {
		return ErrNothingSelected
	}
	var errs []error
	for _, t := range targets {
		if err := fn(t); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

// VolumeUp raises the target volume by step percent.
func (m *Mixer) VolumeUp(step int) error {
	return m.eachTarget(func(t volumeTarget) error { return t.AdjustVolumePercent(step) })
}

// VolumeDown lowers the target volume by step percent.
func (m *Mixer) VolumeDown(step int) error {
	return m.eachTarget(func(t volumeTarget) error { return t.AdjustVolumePercent(-step) })
}

// ToggleMute flips mute on every target.
func (m *Mixer) ToggleMute() error {
	return m.eachTarget(volumeTarget.ToggleMute)
}

// Hide adds name to the hidden set.
func (m *Mixer) Hide(name string) bool { return m.Hidden().Add(name) }

// Unhide removes name from the hidden set.
func (m *Mixer) Unhide(name string) bool { return m.Hidden().Remove(name) }

// HideCurrent hides the process under the multi-selector cursor.
func (m *Mixer) HideCurrent() (string, error) {
	s := m.Multi.CurrentSession()
	if s == nil {
		return "", ErrNothingSelected
	}
	name := s.ProcessName()
	if name == "" {
		name = s.Name()
	}
	m.Hide(name)
	return name, nil
}

// Select points the session selector at the session matching identifier
// and moves the multi-selector cursor onto it when it is visible.
func (m *Mixer) Select(identifier string) (*audio.Session, error) {
	s, err := m.FindSession(identifier)
	if err != nil {
		return nil, err
	}
	if !m.Selector.SetSelected(s) && m.Selector.Selected() != s {
		if m.Selector.LockSelection() {
			return nil, fmt.Errorf("select %s: selection is locked", s.Identity())
		}
		return nil, fmt.Errorf("select %s: session is hidden", s.Identity())
	}
	if m.Sessions.VisibleIndex(s) >= 0 && !m.Multi.LockCurrentIndex() {
		_ = m.Multi.SetCurrentSession(s)
	}
	return s, nil
}

// Rename gives the session matching identifier a custom name; an empty
// name resets it. A rename into or out of a hidden name moves the session
// between Visible and Hidden.
func (m *Mixer) Rename(identifier, name string) (*audio.Session, error) {
	s, err := m.FindSession(identifier)
	if err != nil {
		return nil, err
	}
	s.SetName(name)
	return s, nil
}

// Do dispatches one hotkey command. defaultStep applies when the command
// carries none.
func (m *Mixer) Do(cmd events.Command, defaultStep int) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	step := cmd.Step
	if step == 0 {
		step = defaultStep
	}
	if step == 0 {
		step = DefaultVolumeStep
	}

	switch cmd.Action {
	case events.ActionVolumeUp:
		return m.VolumeUp(step)
	case events.ActionVolumeDown:
		return m.VolumeDown(step)
	case events.ActionToggleMute:
		return m.ToggleMute()
	case events.ActionToggleCurrent:
		if m.Multi.CurrentSession() == nil {
			return ErrNothingSelected
		}
		m.Multi.ToggleCurrent()
	case events.ActionNext:
		m.Multi.IncrementCurrentIndex()
	case events.ActionPrevious:
		m.Multi.DecrementCurrentIndex()
	case events.ActionSelect:
		_, err := m.Select(cmd.Target)
		return err
	case events.ActionRename:
		_, err := m.Rename(cmd.Target, cmd.Name)
		return err
	case events.ActionHide:
		m.Hide(cmd.Target)
	case events.ActionUnhide:
		m.Unhide(cmd.Target)
	case events.ActionNextDevice:
		m.DeviceSelector.SelectNext()
	case events.ActionPreviousDevice:
		m.DeviceSelector.SelectPrevious()
	case events.ActionLock:
		m.Multi.SetLockSelection(true)
		m.Selector.SetLockSelection(true)
	case events.ActionUnlock:
		m.Multi.SetLockSelection(false)
		m.Selector.SetLockSelection(false)
	}
	return nil
}
