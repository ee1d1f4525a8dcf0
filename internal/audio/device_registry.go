package audio

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/model"
)

// DeviceEvent carries a device and its index in the registry list. For
// removals the index is the position the device held before removal.
type DeviceEvent struct {
	Device *Device
	Index  int
}

// DeviceStateEvent reports a device state notification. Device is nil when
// the id was not tracked.
type DeviceStateEvent struct {
	DeviceID string
	State    model.DeviceState
	Device   *Device
}

// DefaultDeviceEvent reports a default-device change for one direction.
// Device is nil when the new default is not tracked.
type DefaultDeviceEvent struct {
	Direction model.Direction
	DeviceID  string
	Device    *Device
}

// DeviceRegistry tracks the active devices admitted by a direction filter.
// It is not safe for concurrent use: every method, including Apply, must be
// called from one logical thread.
type DeviceRegistry struct {
	provider Provider
	filter   model.DirectionFilter
	role     model.Role
	devices  []*Device
	logger   *zap.SugaredLogger

	added          Signal[DeviceEvent]
	removed        Signal[DeviceEvent]
	stateChanged   Signal[DeviceStateEvent]
	defaultChanged Signal[DefaultDeviceEvent]
	volumeChanged  Signal[VolumeEvent]
}

// NewDeviceRegistry returns an empty registry over p. Call Reload to
// import the current topology.
func NewDeviceRegistry(p Provider, opts ...Option) *DeviceRegistry {
	o := buildOptions(opts)
	return &DeviceRegistry{
		provider: p,
		filter:   o.filter,
		role:     o.role,
		logger:   o.logger.Named("device_registry"),
	}
}

// Provider returns the backing provider.
func (r *DeviceRegistry) Provider() Provider { return r.provider }

// Devices returns a copy of the tracked devices in load order.
func (r *DeviceRegistry) Devices() []*Device {
	out := make([]*Device, len(r.devices))
	copy(out, r.devices)
	return out
}

func (r *DeviceRegistry) Len() int { return len(r.devices) }

// IndexOf returns the position of d, or -1.
func (r *DeviceRegistry) IndexOf(d *Device) int {
	for i, other := range r.devices {
		if other == d {
			return i
		}
	}
	return -1
}

// FindByID returns the device with the given native id, or nil.
func (r *DeviceRegistry) FindByID(id string) *Device {
	for _, d := range r.devices {
		if d.id == id {
			return d
		}
	}
	return nil
}

// DirectionFilter returns the current filter.
func (r *DeviceRegistry) DirectionFilter() model.DirectionFilter { return r.filter }

// DefaultRole returns the role whose default-device changes are tracked.
func (r *DeviceRegistry) DefaultRole() model.Role { return r.role }

// SetDirectionFilter changes the filter and reloads: devices no longer
// admitted are unloaded and newly admitted ones are loaded.
func (r *DeviceRegistry) SetDirectionFilter(f model.DirectionFilter) error {
	if f == r.filter {
		return nil
	}
	r.logger.Infow("direction filter changed", "from", r.filter, "to", f)
	r.filter = f
	return r.Reload()
}

// Reload synchronizes the registry with the provider. Devices the filter
// no longer admits, and devices missing from a successful enumeration, are
// removed. Enumeration failures are logged and returned; devices of a
// direction that failed to enumerate are kept as they are.
func (r *DeviceRegistry) Reload() error {
	var errs []error
	enumerated := make(map[model.Direction]map[string]bool)

	for _, dir := range r.filter.Directions() {
		handles, err := r.provider.EnumerateDevices(dir)
		if err != nil {
			r.logger.Warnw("enumerating devices failed", "direction", dir, "error", err)
			errs = append(errs, fmt.Errorf("enumerating %s devices: %w", dir, err))
			continue
		}
		seen := make(map[string]bool, len(handles))
		for _, h := range handles {
			if h == nil {
				continue
			}
			seen[h.ID()] = true
			r.CreateIfUnique(h)
		}
		enumerated[dir] = seen
	}

	for i := len(r.devices) - 1; i >= 0; i-- {
		d := r.devices[i]
		if !r.filter.Includes(d.direction) {
			r.removeAt(i)
			continue
		}
		if seen, ok := enumerated[d.direction]; ok && !seen[d.id] {
			r.removeAt(i)
		}
	}

	for _, dir := range r.filter.Directions() {
		if _, ok := enumerated[dir]; !ok {
			continue
		}
		h, err := r.provider.DefaultDevice(dir, r.role)
		if err != nil {
			r.logger.Warnw("resolving default device failed", "direction", dir, "role", r.role, "error", err)
			continue
		}
		id := ""
		if h != nil {
			id = h.ID()
		}
		if target, changed := r.markDefault(dir, id); changed {
			r.defaultChanged.emit(DefaultDeviceEvent{Direction: dir, DeviceID: id, Device: target})
		}
	}
	return errors.Join(errs...)
}

// Default resolves the provider's default device for (dir, role) and
// returns the tracked Device for it. Provider failures are logged and
// yield nil.
func (r *DeviceRegistry) Default(dir model.Direction, role model.Role) *Device {
	h, err := r.provider.DefaultDevice(dir, role)
	if err != nil {
		r.logger.Warnw("resolving default device failed", "direction", dir, "role", role, "error", err)
		return nil
	}
	if h == nil {
		return nil
	}
	return r.FindByID(h.ID())
}

// CreateIfUnique constructs and tracks a device for h. It returns nil if
// the id is already tracked, the filter rejects the direction, or
// construction failed (logged).
func (r *DeviceRegistry) CreateIfUnique(h DeviceHandle) *Device {
	if h == nil || r.FindByID(h.ID()) != nil {
		return nil
	}
	if !r.filter.Includes(h.Direction()) {
		return nil
	}
	d, err := newDevice(h, &r.volumeChanged, r.logger)
	if err != nil {
		r.logger.Warnw("skipping device", "id", h.ID(), "name", h.Name(), "error", err)
		return nil
	}
	r.devices = append(r.devices, d)
	r.logger.Debugw("device added", "id", d.id, "name", d.name, "direction", d.direction)
	r.added.emit(DeviceEvent{Device: d, Index: len(r.devices) - 1})
	return d
}

// Remove drops the device with the given id. Returns false if untracked.
func (r *DeviceRegistry) Remove(id string) bool {
	for i, d := range r.devices {
		if d.id == id {
			r.removeAt(i)
			return true
		}
	}
	return false
}

// Close removes every device, firing DeviceRemoved for each.
func (r *DeviceRegistry) Close() {
	for len(r.devices) > 0 {
		r.removeAt(len(r.devices) - 1)
	}
}

func (r *DeviceRegistry) removeAt(i int) {
	d := r.devices[i]
	r.devices = append(r.devices[:i], r.devices[i+1:]...)
	r.logger.Debugw("device removed", "id", d.id)
	r.removed.emit(DeviceEvent{Device: d, Index: i})
	d.dispose()
}

// Apply handles one provider notification. It reports whether the
// notification touched a tracked entity.
func (r *DeviceRegistry) Apply(n Notification) bool {
	switch n.Kind {
	case NotifyDeviceAdded:
		return r.CreateIfUnique(n.Device) != nil

	case NotifyDeviceRemoved:
		return r.Remove(n.DeviceID)

	case NotifyDeviceStateChanged:
		return r.applyState(n.DeviceID, n.DeviceState)

	case NotifyDefaultDeviceChanged:
		if n.Role != r.role || !r.filter.Includes(n.Direction) {
			return false
		}
		target, _ := r.markDefault(n.Direction, n.DeviceID)
		r.defaultChanged.emit(DefaultDeviceEvent{Direction: n.Direction, DeviceID: n.DeviceID, Device: target})
		return target != nil

	case NotifySessionCreated, NotifySessionStateChanged, NotifySessionDisconnected, NotifyVolumeChanged:
		d := r.FindByID(n.DeviceID)
		if d == nil {
			return false
		}
		return d.handle(n)

	default:
		r.logger.Debugw("ignoring notification", "kind", n.Kind)
		return false
	}
}

func (r *DeviceRegistry) applyState(id string, st model.DeviceState) bool {
	d := r.FindByID(id)
	r.stateChanged.emit(DeviceStateEvent{DeviceID: id, State: st, Device: d})
	if st != model.DeviceActive {
		return r.Remove(id)
	}
	if d != nil {
		return false
	}
	h, err := r.provider.Device(id)
	if err != nil {
		r.logger.Warnw("resolving reactivated device failed", "id", id, "error", err)
		return false
	}
	return r.CreateIfUnique(h) != nil
}

// markDefault clears the is-default flag of every device of dir and sets
// it on id. An unknown id only clears.
func (r *DeviceRegistry) markDefault(dir model.Direction, id string) (target *Device, changed bool) {
	for _, d := range r.devices {
		if d.direction != dir {
			continue
		}
		isDefault := id != "" && d.id == id
		if d.isDefault != isDefault {
			changed = true
		}
		d.isDefault = isDefault
		if isDefault {
			target = d
		}
	}
	return target, changed
}

// OnDeviceAdded subscribes to device additions.
func (r *DeviceRegistry) OnDeviceAdded(fn func(DeviceEvent)) (cancel func()) {
	return r.added.Subscribe(fn)
}

// OnDeviceRemoved subscribes to device removals. Handlers run before the
// device is disposed.
func (r *DeviceRegistry) OnDeviceRemoved(fn func(DeviceEvent)) (cancel func()) {
	return r.removed.Subscribe(fn)
}

// OnDeviceStateChanged subscribes to device state notifications.
func (r *DeviceRegistry) OnDeviceStateChanged(fn func(DeviceStateEvent)) (cancel func()) {
	return r.stateChanged.Subscribe(fn)
}

// OnDefaultDeviceChanged subscribes to default-device changes.
func (r *DeviceRegistry) OnDefaultDeviceChanged(fn func(DefaultDeviceEvent)) (cancel func()) {
	return r.defaultChanged.Subscribe(fn)
}

// OnVolumeChanged subscribes to volume and mute changes of every tracked
// device and session.
func (r *DeviceRegistry) OnVolumeChanged(fn func(VolumeEvent)) (cancel func()) {
	return r.volumeChanged.Subscribe(fn)
}
