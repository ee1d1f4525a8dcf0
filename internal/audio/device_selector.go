package audio

import (
	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/model"
)

// DeviceSelector is a single-selection pointer over a DeviceRegistry.
type DeviceSelector struct {
	registry  *DeviceRegistry
	direction model.Direction
	sel       singleSelection[*Device]
	cancel    func()
	logger    *zap.SugaredLogger
}

// NewDeviceSelector returns a selector with nothing selected.
// WithDefaultDirection picks the direction SelectDefault resolves.
func NewDeviceSelector(reg *DeviceRegistry, opts ...Option) *DeviceSelector {
	o := buildOptions(opts)
	s := &DeviceSelector{
		registry:  reg,
		direction: o.direction,
		logger:    o.logger.Named("device_selector"),
	}
	s.sel.items = reg.Devices
	s.cancel = reg.OnDeviceRemoved(func(e DeviceEvent) { s.sel.clearIfSelected(e.Device) })
	return s
}

// Selected returns the selected device, or nil.
func (s *DeviceSelector) Selected() *Device { return s.sel.selected }

// SelectedIndex is the index of Selected in the registry, or -1.
func (s *DeviceSelector) SelectedIndex() int { return s.sel.index(s.sel.selected) }

// SetSelected selects d, or deselects on nil. It reports whether the
// selection changed; locked selectors and untracked devices do nothing.
func (s *DeviceSelector) SetSelected(d *Device) bool { return s.sel.setSelected(d) }

// SetSelectedIndex selects by position; -1 deselects. Out-of-range indices
// return ErrIndexOutOfRange even when the selector is locked.
func (s *DeviceSelector) SetSelectedIndex(i int) error { return s.sel.setIndex(i) }

// SelectNext moves to the next device, wrapping around.
func (s *DeviceSelector) SelectNext() { s.sel.step(1) }

// SelectPrevious moves to the previous device, wrapping around.
func (s *DeviceSelector) SelectPrevious() { s.sel.step(-1) }

func (s *DeviceSelector) Deselect() { s.sel.setSelected(nil) }

// SelectDefault selects the provider's current default device. If the
// default cannot be resolved the selection is left as it is.
func (s *DeviceSelector) SelectDefault() bool {
	if s.sel.locked {
		return false
	}
	d := s.registry.Default(s.direction, s.registry.DefaultRole())
	if d == nil {
		s.logger.Debugw("no default device to select", "direction", s.direction)
		return false
	}
	return s.sel.set(d)
}

func (s *DeviceSelector) LockSelection() bool        { return s.sel.locked }
func (s *DeviceSelector) SetLockSelection(lock bool) { s.sel.setLocked(lock) }

// OnSelectedChanged subscribes to selection changes.
func (s *DeviceSelector) OnSelectedChanged(fn func(SelectionEvent[*Device])) (cancel func()) {
	return s.sel.changed.Subscribe(fn)
}

// OnLockSelectionChanged subscribes to lock changes.
func (s *DeviceSelector) OnLockSelectionChanged(fn func(bool)) (cancel func()) {
	return s.sel.lockChanged.Subscribe(fn)
}

// Close stops observing the registry.
func (s *DeviceSelector) Close() { s.cancel() }
