package audio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timvw/volume-patrol/internal/model"
)

type fakeControls struct {
	volume   float64
	muted    bool
	peak     float64
	failRead bool
	failSet  bool
}

var errFake = errors.New("fake failure")

func (c *fakeControls) Volume() (float64, error) {
	if c.failRead {
		return 0, errFake
	}
	return c.volume, nil
}

func (c *fakeControls) SetVolume(v float64) error {
	if c.failSet {
		return errFake
	}
	c.volume = v
	return nil
}

func (c *fakeControls) Muted() (bool, error) {
	if c.failRead {
		return false, errFake
	}
	return c.muted, nil
}

func (c *fakeControls) SetMuted(m bool) error {
	if c.failSet {
		return errFake
	}
	c.muted = m
	return nil
}

func (c *fakeControls) Peak() (float64, error) { return c.peak, nil }

type fakeSession struct {
	instanceID  string
	sessionID   string
	pid         int
	process     string
	display     string
	controls    *fakeControls
	controlsErr error
}

func (s *fakeSession) InstanceID() string  { return s.instanceID }
func (s *fakeSession) SessionID() string   { return s.sessionID }
func (s *fakeSession) PID() int            { return s.pid }
func (s *fakeSession) ProcessName() string { return s.process }
func (s *fakeSession) DisplayName() string { return s.display }

func (s *fakeSession) Controls() (Controls, error) {
	if s.controlsErr != nil {
		return nil, s.controlsErr
	}
	return s.controls, nil
}

type fakeDevice struct {
	id          string
	name        string
	dir         model.Direction
	controls    *fakeControls
	controlsErr error
	sessions    []*fakeSession
}

func (d *fakeDevice) ID() string                 { return d.id }
func (d *fakeDevice) Name() string               { return d.name }
func (d *fakeDevice) Direction() model.Direction { return d.dir }

func (d *fakeDevice) Controls() (Controls, error) {
	if d.controlsErr != nil {
		return nil, d.controlsErr
	}
	return d.controls, nil
}

func (d *fakeDevice) Sessions() ([]SessionHandle, error) {
	out := make([]SessionHandle, len(d.sessions))
	for i, s := range d.sessions {
		out[i] = s
	}
	return out, nil
}

// fakeProvider is an in-memory topology.
type fakeProvider struct {
	devices      []*fakeDevice
	defaults     map[model.Direction]string
	defaultErr   error
	enumerateErr error
}

func newFakeProvider(devices ...*fakeDevice) *fakeProvider {
	return &fakeProvider{devices: devices, defaults: make(map[model.Direction]string)}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) EnumerateDevices(dir model.Direction) ([]DeviceHandle, error) {
	if p.enumerateErr != nil {
		return nil, p.enumerateErr
	}
	var out []DeviceHandle
	for _, d := range p.devices {
		if d.dir == dir {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *fakeProvider) DefaultDevice(dir model.Direction, _ model.Role) (DeviceHandle, error) {
	if p.defaultErr != nil {
		return nil, p.defaultErr
	}
	id, ok := p.defaults[dir]
	if !ok {
		return nil, nil
	}
	return p.Device(id)
}

func (p *fakeProvider) Device(id string) (DeviceHandle, error) {
	for _, d := range p.devices {
		if d.id == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %s: not found", id)
}

func newFakeDevice(id string, dir model.Direction, sessions ...*fakeSession) *fakeDevice {
	return &fakeDevice{
		id:       id,
		name:     "Device " + id,
		dir:      dir,
		controls: &fakeControls{volume: 0.5},
		sessions: sessions,
	}
}

func newFakeSession(pid int, process string) *fakeSession {
	return &fakeSession{
		instanceID: fmt.Sprintf("inst-%d-%s", pid, process),
		sessionID:  "sess-" + process,
		pid:        pid,
		process:    process,
		controls:   &fakeControls{volume: 1},
	}
}

// fixture wires a registry and an aggregator the way the mixer does.
type fixture struct {
	provider *fakeProvider
	registry *DeviceRegistry
	agg      *SessionAggregator
	names    *NameSet
}

func newFixture(t *testing.T, devices ...*fakeDevice) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(devices...),
		names:    NewNameSet(),
	}
	f.registry = NewDeviceRegistry(f.provider, WithDirectionFilter(model.FilterBoth))
	f.agg = NewSessionAggregator(f.names)
	f.registry.OnDeviceAdded(func(e DeviceEvent) { f.agg.Attach(e.Device.Sessions()) })
	f.registry.OnDeviceRemoved(func(e DeviceEvent) { f.agg.Detach(e.Device.Sessions()) })
	require.NoError(t, f.registry.Reload())
	return f
}

func (f *fixture) createSession(t *testing.T, deviceID string, h *fakeSession) *Session {
	t.Helper()
	ok := f.registry.Apply(Notification{Kind: NotifySessionCreated, DeviceID: deviceID, Session: h})
	require.True(t, ok, "session %s not created", h.instanceID)
	return f.registry.FindByID(deviceID).Sessions().FindByInstanceID(h.instanceID)
}

// counter counts emissions of any signal.
type counter[T any] struct {
	events []T
}

func (c *counter[T]) record(v T) { c.events = append(c.events, v) }
func (c *counter[T]) n() int     { return len(c.events) }
