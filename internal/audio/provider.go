package audio

import (
	"fmt"

	"github.com/timvw/volume-patrol/internal/model"
)

// Controls is the native volume surface of a device or session.
// Volume is a scalar in [0, 1].
type Controls interface {
	Volume() (float64, error)
	SetVolume(v float64) error
	Muted() (bool, error)
	SetMuted(muted bool) error
	Peak() (float64, error)
}

// SessionHandle is a provider's view of one process stream.
type SessionHandle interface {
	InstanceID() string
	SessionID() string
	PID() int
	ProcessName() string
	// DisplayName is the OS-provided label; may be empty.
	DisplayName() string
	// Controls resolves the native controls. Called again for every
	// session-created notification.
	Controls() (Controls, error)
}

// DeviceHandle is a provider's view of one endpoint.
type DeviceHandle interface {
	ID() string
	Name() string
	Direction() model.Direction
	Controls() (Controls, error)
	// Sessions enumerates the sessions currently open on the endpoint.
	Sessions() ([]SessionHandle, error)
}

// Provider enumerates and resolves OS audio endpoints. Implementations may
// be called from the logical thread only.
type Provider interface {
	Name() string
	EnumerateDevices(dir model.Direction) ([]DeviceHandle, error)
	// DefaultDevice returns the default endpoint, or nil if there is none.
	DefaultDevice(dir model.Direction, role model.Role) (DeviceHandle, error)
	// Device looks up an endpoint by native id.
	Device(id string) (DeviceHandle, error)
}

// NotificationKind identifies a provider notification.
type NotificationKind int

const (
	NotifyDeviceAdded NotificationKind = iota + 1
	NotifyDeviceRemoved
	NotifyDeviceStateChanged
	NotifyDefaultDeviceChanged
	NotifySessionCreated
	NotifySessionStateChanged
	NotifySessionDisconnected
	NotifyVolumeChanged
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyDeviceAdded:
		return "device_added"
	case NotifyDeviceRemoved:
		return "device_removed"
	case NotifyDeviceStateChanged:
		return "device_state_changed"
	case NotifyDefaultDeviceChanged:
		return "default_device_changed"
	case NotifySessionCreated:
		return "session_created"
	case NotifySessionStateChanged:
		return "session_state_changed"
	case NotifySessionDisconnected:
		return "session_disconnected"
	case NotifyVolumeChanged:
		return "volume_changed"
	default:
		return fmt.Sprintf("notification(%d)", int(k))
	}
}

// Notification is a provider callback captured as a value so the
// integration layer can deliver it on the logical thread. Which fields are
// set depends on Kind:
//
//	DeviceAdded           Device
//	DeviceRemoved         DeviceID
//	DeviceStateChanged    DeviceID, DeviceState
//	DefaultDeviceChanged  DeviceID (empty: no default), Direction, Role
//	SessionCreated        DeviceID, Session
//	SessionStateChanged   DeviceID, InstanceID, SessionState
//	SessionDisconnected   DeviceID, InstanceID
//	VolumeChanged         DeviceID, InstanceID (empty: the device), Volume, Muted
type Notification struct {
	Kind         NotificationKind
	DeviceID     string
	Direction    model.Direction
	Role         model.Role
	DeviceState  model.DeviceState
	SessionState model.SessionState
	InstanceID   string
	Volume       float64
	Muted        bool
	Device       DeviceHandle
	Session      SessionHandle
}

func (n Notification) String() string {
	switch {
	case n.InstanceID != "":
		return fmt.Sprintf("%s device=%s session=%s", n.Kind, n.DeviceID, n.InstanceID)
	case n.Device != nil:
		return fmt.Sprintf("%s device=%s", n.Kind, n.Device.ID())
	default:
		return fmt.Sprintf("%s device=%s", n.Kind, n.DeviceID)
	}
}
