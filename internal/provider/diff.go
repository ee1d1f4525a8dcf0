package provider

import (
	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/model"
)

// DefaultKey identifies a default-device slot.
type DefaultKey struct {
	Direction model.Direction
	Role      model.Role
}

// Topology is a point-in-time view of everything a provider reports.
type Topology struct {
	Devices  []DeviceSnapshot
	Defaults map[DefaultKey]string
}

// DeviceSnapshot captures one endpoint.
type DeviceSnapshot struct {
	Handle   audio.DeviceHandle
	State    model.DeviceState
	Volume   float64
	Muted    bool
	Sessions []SessionSnapshot
}

// SessionSnapshot captures one session.
type SessionSnapshot struct {
	Handle audio.SessionHandle
	State  model.SessionState
	Volume float64
	Muted  bool
}

func (t Topology) device(id string) (DeviceSnapshot, bool) {
	for _, d := range t.Devices {
		if d.Handle.ID() == id {
			return d, true
		}
	}
	return DeviceSnapshot{}, false
}

// Diff returns the notifications that turn prev into next, ordered so
// that removals come before additions and default changes come last.
func Diff(prev, next Topology) []audio.Notification {
	var out []audio.Notification

	// Removed or state-changed devices.
	for _, p := range prev.Devices {
		id := p.Handle.ID()
		n, ok := next.device(id)
		switch {
		case !ok:
			if p.State == model.DeviceActive {
				out = append(out, audio.Notification{Kind: audio.NotifyDeviceRemoved, DeviceID: id})
			}
		case n.State != p.State:
			out = append(out, audio.Notification{Kind: audio.NotifyDeviceStateChanged, DeviceID: id, DeviceState: n.State})
		}
	}

	// New devices carry their sessions with them.
	for _, n := range next.Devices {
		if _, ok := prev.device(n.Handle.ID()); !ok && n.State == model.DeviceActive {
			out = append(out, audio.Notification{Kind: audio.NotifyDeviceAdded, Device: n.Handle})
		}
	}

	// Sessions and volumes of devices active on both sides.
	for _, n := range next.Devices {
		p, ok := prev.device(n.Handle.ID())
		if !ok || p.State != model.DeviceActive || n.State != model.DeviceActive {
			continue
		}
		out = append(out, diffSessions(n.Handle.ID(), p.Sessions, n.Sessions)...)
		if p.Volume != n.Volume || p.Muted != n.Muted {
			out = append(out, audio.Notification{
				Kind: audio.NotifyVolumeChanged, DeviceID: n.Handle.ID(), Volume: n.Volume, Muted: n.Muted,
			})
		}
	}

	for _, key := range defaultKeys(prev, next) {
		if prev.Defaults[key] != next.Defaults[key] {
			out = append(out, audio.Notification{
				Kind:      audio.NotifyDefaultDeviceChanged,
				DeviceID:  next.Defaults[key],
				Direction: key.Direction,
				Role:      key.Role,
			})
		}
	}
	return out
}

func diffSessions(deviceID string, prev, next []SessionSnapshot) []audio.Notification {
	var out []audio.Notification
	find := func(list []SessionSnapshot, id string) (SessionSnapshot, bool) {
		for _, s := range list {
			if s.Handle.InstanceID() == id {
				return s, true
			}
		}
		return SessionSnapshot{}, false
	}

	for _, p := range prev {
		id := p.Handle.InstanceID()
		n, ok := find(next, id)
		switch {
		case !ok && !p.State.Terminal():
			out = append(out, audio.Notification{
				Kind: audio.NotifySessionStateChanged, DeviceID: deviceID, InstanceID: id, SessionState: model.SessionExpired,
			})
		case ok && n.State != p.State && !p.State.Terminal():
			kind := audio.NotifySessionStateChanged
			if n.State == model.SessionDisconnected {
				kind = audio.NotifySessionDisconnected
			}
			out = append(out, audio.Notification{Kind: kind, DeviceID: deviceID, InstanceID: id, SessionState: n.State})
		case ok && (n.Volume != p.Volume || n.Muted != p.Muted):
			out = append(out, audio.Notification{
				Kind: audio.NotifyVolumeChanged, DeviceID: deviceID, InstanceID: id, Volume: n.Volume, Muted: n.Muted,
			})
		}
	}

	for _, n := range next {
		if _, ok := find(prev, n.Handle.InstanceID()); !ok && !n.State.Terminal() {
			out = append(out, audio.Notification{Kind: audio.NotifySessionCreated, DeviceID: deviceID, Session: n.Handle})
		}
	}
	return out
}

// defaultKeys returns the union of default slots in a stable order.
func defaultKeys(prev, next Topology) []DefaultKey {
	var keys []DefaultKey
	for _, dir := range []model.Direction{model.Render, model.Capture} {
		for _, role := range []model.Role{model.RoleConsole, model.RoleMultimedia, model.RoleCommunications} {
			k := DefaultKey{Direction: dir, Role: role}
			_, inPrev := prev.Defaults[k]
			_, inNext := next.Defaults[k]
			if inPrev || inNext {
				keys = append(keys, k)
			}
		}
	}
	return keys
}
