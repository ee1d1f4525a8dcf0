package audio

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/model"
)

// Device is one OS audio endpoint tracked by a DeviceRegistry. It owns its
// DeviceSessionRegistry; disposing the device disposes its sessions.
type Device struct {
	id        string
	name      string
	direction model.Direction
	isDefault bool

	controls Controls
	volume   float64
	muted    bool

	sessions   *DeviceSessionRegistry
	disposed   bool
	volumeSink *Signal[VolumeEvent]
}

func newDevice(h DeviceHandle, sink *Signal[VolumeEvent], logger *zap.SugaredLogger) (*Device, error) {
	if h == nil {
		return nil, errors.New("nil device handle")
	}
	if h.ID() == "" {
		return nil, fmt.Errorf("device %q has no id", h.Name())
	}
	ctrl, err := h.Controls()
	if err != nil {
		return nil, fmt.Errorf("resolving controls of device %s: %w", h.ID(), err)
	}
	vol, err := ctrl.Volume()
	if err != nil {
		return nil, fmt.Errorf("reading volume of device %s: %w", h.ID(), err)
	}
	muted, err := ctrl.Muted()
	if err != nil {
		return nil, fmt.Errorf("reading mute of device %s: %w", h.ID(), err)
	}

	d := &Device{
		id:         h.ID(),
		name:       h.Name(),
		direction:  h.Direction(),
		controls:   ctrl,
		volume:     clampVolume(vol),
		muted:      muted,
		volumeSink: sink,
	}

	handles, err := h.Sessions()
	if err != nil {
		logger.Warnw("enumerating sessions failed", "device", d.id, "error", err)
		handles = nil
	}
	d.sessions = newDeviceSessionRegistry(d, handles, logger)
	return d, nil
}

func (d *Device) ID() string                 { return d.id }
func (d *Device) Name() string               { return d.name }
func (d *Device) Direction() model.Direction { return d.direction }
func (d *Device) IsDefault() bool            { return d.isDefault }
func (d *Device) Disposed() bool             { return d.disposed }

// Sessions returns the registry of sessions open on this device.
func (d *Device) Sessions() *DeviceSessionRegistry { return d.sessions }

func (d *Device) Volume() float64    { return d.volume }
func (d *Device) VolumePercent() int { return toPercent(d.volume) }
func (d *Device) Muted() bool        { return d.muted }

// Peak reads the current peak level. Errors read as silence.
func (d *Device) Peak() float64 {
	if d.disposed {
		return 0
	}
	p, err := d.controls.Peak()
	if err != nil {
		return 0
	}
	return p
}

func (d *Device) SetVolume(v float64) error {
	if d.disposed {
		return ErrDisposed
	}
	v = clampVolume(v)
	if err := d.controls.SetVolume(v); err != nil {
		return fmt.Errorf("setting volume of device %s: %w", d.id, err)
	}
	d.applyVolume(v, d.muted)
	return nil
}

func (d *Device) SetVolumePercent(p int) error { return d.SetVolume(float64(p) / 100) }

func (d *Device) AdjustVolumePercent(delta int) error {
	return d.SetVolumePercent(d.VolumePercent() + delta)
}

func (d *Device) SetMuted(muted bool) error {
	if d.disposed {
		return ErrDisposed
	}
	if err := d.controls.SetMuted(muted); err != nil {
		return fmt.Errorf("setting mute of device %s: %w", d.id, err)
	}
	d.applyVolume(d.volume, muted)
	return nil
}

func (d *Device) ToggleMute() error { return d.SetMuted(!d.muted) }

func (d *Device) applyVolume(v float64, muted bool) {
	v = clampVolume(v)
	if v == d.volume && muted == d.muted {
		return
	}
	d.volume, d.muted = v, muted
	if d.volumeSink != nil {
		d.volumeSink.emit(VolumeEvent{DeviceID: d.id, Volume: v, Muted: muted})
	}
}

// handle routes a per-device notification to the session registry.
func (d *Device) handle(n Notification) bool {
	if d.disposed {
		return false
	}
	switch n.Kind {
	case NotifySessionCreated:
		return d.sessions.handleSessionCreated(n.Session)
	case NotifySessionStateChanged:
		return d.sessions.handleSessionState(n.InstanceID, n.SessionState)
	case NotifySessionDisconnected:
		return d.sessions.handleSessionState(n.InstanceID, model.SessionDisconnected)
	case NotifyVolumeChanged:
		if n.InstanceID == "" {
			d.applyVolume(n.Volume, n.Muted)
			return true
		}
		s := d.sessions.FindByInstanceID(n.InstanceID)
		if s == nil {
			return false
		}
		s.applyVolume(n.Volume, n.Muted)
		return true
	default:
		return false
	}
}

func (d *Device) dispose() {
	if d.disposed {
		return
	}
	d.sessions.dispose()
	d.disposed = true
}

func (d *Device) String() string { return d.id }
