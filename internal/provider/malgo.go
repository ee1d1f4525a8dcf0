package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/model"
)

// Malgo enumerates endpoints through miniaudio. miniaudio exposes neither
// per-process sessions nor endpoint volume, so devices report unity gain,
// writes fail with ErrUnsupported, and session lists are empty.
type Malgo struct {
	refresh time.Duration
	logger  *zap.SugaredLogger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgo initializes a miniaudio context with automatic backend selection.
func NewMalgo(opts Options) (*Malgo, error) {
	logger := opts.logger().Named("malgo")
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debugw("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Malgo{refresh: opts.Refresh, logger: logger, ctx: ctx}, nil
}

// Name returns "malgo".
func (m *Malgo) Name() string { return "malgo" }

// deviceInfos lists the endpoints of one direction.
func (m *Malgo) deviceInfos(dir model.Direction) ([]malgo.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, audio.ErrDisposed
	}
	kind := malgo.Playback
	if dir == model.Capture {
		kind = malgo.Capture
	}
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("listing %s devices: %w", dir, err)
	}
	return infos, nil
}

func (m *Malgo) EnumerateDevices(dir model.Direction) ([]audio.DeviceHandle, error) {
	infos, err := m.deviceInfos(dir)
	if err != nil {
		return nil, err
	}
	out := make([]audio.DeviceHandle, 0, len(infos))
	for _, info := range infos {
		out = append(out, newMalgoDevice(info, dir))
	}
	return out, nil
}

// DefaultDevice returns the backend default for dir. miniaudio has a single
// default per direction, so every role maps to it.
func (m *Malgo) DefaultDevice(dir model.Direction, _ model.Role) (audio.DeviceHandle, error) {
	infos, err := m.deviceInfos(dir)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.IsDefault == 1 {
			return newMalgoDevice(info, dir), nil
		}
	}
	return nil, nil
}

func (m *Malgo) Device(id string) (audio.DeviceHandle, error) {
	for _, dir := range []model.Direction{model.Render, model.Capture} {
		infos, err := m.deviceInfos(dir)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if info.ID.String() == id {
				return newMalgoDevice(info, dir), nil
			}
		}
	}
	return nil, fmt.Errorf("device %s: not found", id)
}

// Topology snapshots both directions.
func (m *Malgo) Topology() (Topology, error) {
	t := Topology{Defaults: make(map[DefaultKey]string)}
	for _, dir := range []model.Direction{model.Render, model.Capture} {
		infos, err := m.deviceInfos(dir)
		if err != nil {
			return Topology{}, err
		}
		for _, info := range infos {
			d := newMalgoDevice(info, dir)
			t.Devices = append(t.Devices, DeviceSnapshot{Handle: d, State: model.DeviceActive, Volume: 1})
			if info.IsDefault == 1 {
				for _, role := range []model.Role{model.RoleConsole, model.RoleMultimedia, model.RoleCommunications} {
					t.Defaults[DefaultKey{Direction: dir, Role: role}] = d.id
				}
			}
		}
	}
	return t, nil
}

// Watch polls the device list on the configured refresh interval. With
// polling disabled it blocks until ctx is done.
func (m *Malgo) Watch(ctx context.Context, out chan<- audio.Notification) error {
	if m.refresh <= 0 {
		<-ctx.Done()
		return nil
	}
	prev, err := m.Topology()
	if err != nil {
		return err
	}
	p := newPoller(m.refresh, m.Topology, func(err error) {
		m.logger.Warnw("device poll failed", "error", err)
	})
	return p.run(ctx, prev, out)
}

// Close releases the miniaudio context.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

type malgoDevice struct {
	id   string
	name string
	dir  model.Direction
}

func newMalgoDevice(info malgo.DeviceInfo, dir model.Direction) *malgoDevice {
	return &malgoDevice{id: info.ID.String(), name: info.Name(), dir: dir}
}

func (d *malgoDevice) ID() string                               { return d.id }
func (d *malgoDevice) Name() string                             { return d.name }
func (d *malgoDevice) Direction() model.Direction               { return d.dir }
func (d *malgoDevice) Controls() (audio.Controls, error)        { return unityControls{}, nil }
func (d *malgoDevice) Sessions() ([]audio.SessionHandle, error) { return nil, nil }

// unityControls reports full volume, unmuted, and rejects writes.
type unityControls struct{}

func (unityControls) Volume() (float64, error) { return 1, nil }
func (unityControls) SetVolume(float64) error  { return ErrUnsupported }
func (unityControls) Muted() (bool, error)     { return false, nil }
func (unityControls) SetMuted(bool) error      { return ErrUnsupported }
func (unityControls) Peak() (float64, error)   { return 0, nil }
