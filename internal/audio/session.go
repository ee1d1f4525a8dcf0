package audio

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/timvw/volume-patrol/internal/model"
)

// VolumeEvent reports a volume or mute change on a device (Session == nil)
// or on one of its sessions.
type VolumeEvent struct {
	DeviceID string
	Session  *Session
	Volume   float64
	Muted    bool
}

// Session is one process's audio stream on one Device. It is owned by the
// device's DeviceSessionRegistry; other components hold non-owning
// references and must not dispose it.
type Session struct {
	instanceID  string
	sessionID   string
	pid         int
	processName string
	displayName string
	customName  string
	direction   model.Direction
	// deviceID is a lookup key resolved through DeviceRegistry.FindByID. It
	// never keeps the device alive.
	deviceID string

	controls Controls
	volume   float64
	muted    bool
	hidden   bool
	state    model.SessionState
	disposed bool

	stateChanged Signal[model.SessionState]
	renamed      Signal[*Session]
	volumeSink   *Signal[VolumeEvent]
}

func newSession(h SessionHandle, d *Device) (*Session, error) {
	if h == nil {
		return nil, errors.New("nil session handle")
	}
	id := h.InstanceID()
	if id == "" {
		return nil, fmt.Errorf("session of pid %d has no instance id", h.PID())
	}
	ctrl, err := h.Controls()
	if err != nil {
		return nil, fmt.Errorf("resolving controls of session %s: %w", id, err)
	}
	vol, err := ctrl.Volume()
	if err != nil {
		return nil, fmt.Errorf("reading volume of session %s: %w", id, err)
	}
	muted, err := ctrl.Muted()
	if err != nil {
		return nil, fmt.Errorf("reading mute of session %s: %w", id, err)
	}
	return &Session{
		instanceID:  id,
		sessionID:   h.SessionID(),
		pid:         h.PID(),
		processName: h.ProcessName(),
		displayName: h.DisplayName(),
		direction:   d.direction,
		deviceID:    d.id,
		controls:    ctrl,
		volume:      clampVolume(vol),
		muted:       muted,
		state:       model.SessionActive,
		volumeSink:  d.volumeSink,
	}, nil
}

// InstanceID is the native session-instance id, unique per session.
func (s *Session) InstanceID() string { return s.instanceID }

// SessionID is the native session id. Several sessions may share it.
func (s *Session) SessionID() string { return s.sessionID }

func (s *Session) PID() int                   { return s.pid }
func (s *Session) ProcessName() string        { return s.processName }
func (s *Session) Direction() model.Direction { return s.direction }
func (s *Session) DeviceID() string           { return s.deviceID }
func (s *Session) State() model.SessionState  { return s.state }
func (s *Session) Disposed() bool             { return s.disposed }

// Hidden is the advisory hidden flag, set when the aggregator places the
// session in its Hidden partition. Partition membership is authoritative.
func (s *Session) Hidden() bool { return s.hidden }

// Name is the custom name if one is set, else the display name, else the
// process name.
func (s *Session) Name() string {
	if s.customName != "" {
		return s.customName
	}
	if s.displayName != "" {
		return s.displayName
	}
	return s.processName
}

// DisplayName is the OS label or the name suggested by a name preview.
func (s *Session) DisplayName() string { return s.displayName }

// HasCustomName reports whether SetName overrode the name.
func (s *Session) HasCustomName() bool { return s.customName != "" }

// CustomName returns the overriding name, or "".
func (s *Session) CustomName() string { return s.customName }

// SetName overrides the display name. A blank name resets it.
func (s *Session) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == s.customName {
		return
	}
	s.customName = name
	s.renamed.emit(s)
}

// ResetName drops a custom name.
func (s *Session) ResetName() { s.SetName("") }

// OnRenamed subscribes to custom-name changes.
func (s *Session) OnRenamed(fn func(*Session)) (cancel func()) {
	return s.renamed.Subscribe(fn)
}

// Identity is "pid:processName:direction", the string users type to find
// a session.
func (s *Session) Identity() string {
	return FormatIdentity(s.pid, s.processName, s.direction)
}

// FormatIdentity builds an identity string.
func FormatIdentity(pid int, processName string, dir model.Direction) string {
	return fmt.Sprintf("%d:%s:%s", pid, processName, dir)
}

// Volume is the cached volume scalar in [0, 1].
func (s *Session) Volume() float64 { return s.volume }

// VolumePercent is Volume as an integer 0-100.
func (s *Session) VolumePercent() int { return toPercent(s.volume) }

func (s *Session) Muted() bool { return s.muted }

// Peak reads the current peak level. Errors read as silence.
func (s *Session) Peak() float64 {
	if s.disposed {
		return 0
	}
	p, err := s.controls.Peak()
	if err != nil {
		return 0
	}
	return p
}

// SetVolume clamps v to [0, 1] and writes it through the native controls.
func (s *Session) SetVolume(v float64) error {
	if s.disposed {
		return ErrDisposed
	}
	v = clampVolume(v)
	if err := s.controls.SetVolume(v); err != nil {
		return fmt.Errorf("setting volume of %s: %w", s.Identity(), err)
	}
	s.applyVolume(v, s.muted)
	return nil
}

// SetVolumePercent sets the volume from a 0-100 value.
func (s *Session) SetVolumePercent(p int) error {
	return s.SetVolume(float64(p) / 100)
}

// AdjustVolumePercent moves the volume by delta percent points.
func (s *Session) AdjustVolumePercent(delta int) error {
	return s.SetVolumePercent(s.VolumePercent() + delta)
}

func (s *Session) SetMuted(muted bool) error {
	if s.disposed {
		return ErrDisposed
	}
	if err := s.controls.SetMuted(muted); err != nil {
		return fmt.Errorf("setting mute of %s: %w", s.Identity(), err)
	}
	s.applyVolume(s.volume, muted)
	return nil
}

func (s *Session) ToggleMute() error { return s.SetMuted(!s.muted) }

func (s *Session) applyVolume(v float64, muted bool) {
	v = clampVolume(v)
	if v == s.volume && muted == s.muted {
		return
	}
	s.volume, s.muted = v, muted
	if s.volumeSink != nil {
		s.volumeSink.emit(VolumeEvent{DeviceID: s.deviceID, Session: s, Volume: v, Muted: muted})
	}
}

// applyState records a lifecycle change. Terminal states are final.
func (s *Session) applyState(st model.SessionState) {
	if s.disposed || s.state.Terminal() || s.state == st {
		return
	}
	s.state = st
	s.stateChanged.emit(st)
}

func (s *Session) dispose() {
	s.disposed = true
	s.stateChanged = Signal[model.SessionState]{}
	s.renamed = Signal[*Session]{}
}

func (s *Session) String() string { return s.Identity() }

func clampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func toPercent(v float64) int { return int(math.Round(v * 100)) }
