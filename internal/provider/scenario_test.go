package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/model"
	"github.com/timvw/volume-patrol/internal/procinfo"
)

const baseScenario = `
devices:
  - id: spk
    name: Speakers
    default: [console, multimedia]
    volume: 0.8
    sessions:
      - pid: 100
        process: spotify.exe
        volume: 0.5
      - pid: 200
        instance_id: fixed-id
        display_name: Chat
  - id: mic
    name: Microphone
    direction: capture
    default: [communications]
  - id: hdmi
    name: HDMI
    state: disabled
`

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseScenario_Defaults(t *testing.T) {
	names := func(pid int) string { return "resolved.exe" }
	f, err := ParseScenario([]byte(baseScenario), names)
	require.NoError(t, err)
	require.Len(t, f.Devices, 3)

	spk := f.Devices[0]
	assert.Equal(t, model.Render, spk.dir)
	assert.Equal(t, 0.8, *spk.Volume)
	assert.NotEmpty(t, spk.Sessions[0].InstanceID)
	assert.Equal(t, "fixed-id", spk.Sessions[1].InstanceID)
	assert.Equal(t, "resolved.exe", spk.Sessions[1].Process)
	assert.Equal(t, 1.0, *spk.Sessions[1].Volume)
	assert.Equal(t, model.DeviceDisabled, f.Devices[2].state)

	again, err := ParseScenario([]byte(baseScenario), names)
	require.NoError(t, err)
	assert.Equal(t, spk.Sessions[0].InstanceID, again.Devices[0].Sessions[0].InstanceID, "derived ids are stable")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "devices:\n  - name: x\n"},
		{"duplicate id", "devices:\n  - id: a\n  - id: a\n"},
		{"bad direction", "devices:\n  - id: a\n    direction: sideways\n"},
		{"bad role", "devices:\n  - id: a\n    default: [gaming]\n"},
		{"bad device state", "devices:\n  - id: a\n    state: broken\n"},
		{"bad session state", "devices:\n  - id: a\n    sessions:\n      - pid: 1\n        state: zombie\n"},
		{"not yaml", "devices: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestScenario_Enumerate(t *testing.T) {
	s, err := NewScenario(writeScenario(t, t.TempDir(), baseScenario), Options{})
	require.NoError(t, err)
	defer s.Close()

	render, err := s.EnumerateDevices(model.Render)
	require.NoError(t, err)
	require.Len(t, render, 1, "disabled devices are not enumerated")
	assert.Equal(t, "spk", render[0].ID())
	assert.Equal(t, "Speakers", render[0].Name())

	def, err := s.DefaultDevice(model.Capture, model.RoleCommunications)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "mic", def.ID())

	def, err = s.DefaultDevice(model.Capture, model.RoleMultimedia)
	require.NoError(t, err)
	assert.Nil(t, def)

	hdmi, err := s.Device("hdmi")
	require.NoError(t, err)
	assert.Equal(t, "HDMI", hdmi.Name())
	_, err = s.Device("nope")
	assert.Error(t, err)

	sessions, err := render[0].Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 100, sessions[0].PID())
	assert.Equal(t, "spotify.exe", sessions[0].ProcessName())
	assert.Equal(t, "Chat", sessions[1].DisplayName())
}

func TestScenario_ControlsWriteBack(t *testing.T) {
	s, err := NewScenario(writeScenario(t, t.TempDir(), baseScenario), Options{})
	require.NoError(t, err)

	h, err := s.Device("spk")
	require.NoError(t, err)
	sessions, err := h.Sessions()
	require.NoError(t, err)
	c, err := sessions[0].Controls()
	require.NoError(t, err)

	require.NoError(t, c.SetVolume(0.2))
	require.NoError(t, c.SetMuted(true))

	v, err := c.Volume()
	require.NoError(t, err)
	assert.Equal(t, 0.2, v)
	m, err := c.Muted()
	require.NoError(t, err)
	assert.True(t, m)

	// The device's own controls are independent of its sessions.
	dc, err := h.Controls()
	require.NoError(t, err)
	v, err = dc.Volume()
	require.NoError(t, err)
	assert.Equal(t, 0.8, v)
}

func TestScenario_FeedsRegistry(t *testing.T) {
	s, err := NewScenario(writeScenario(t, t.TempDir(), baseScenario), Options{})
	require.NoError(t, err)

	reg := audio.NewDeviceRegistry(s, audio.WithDirectionFilter(model.FilterBoth), audio.WithDefaultRole(model.RoleConsole))
	require.NoError(t, reg.Reload())
	require.Equal(t, 2, reg.Len())
	spk := reg.FindByID("spk")
	require.NotNil(t, spk)
	assert.True(t, spk.IsDefault())
	assert.False(t, reg.FindByID("mic").IsDefault(), "mic is only the communications default")
	assert.Equal(t, 2, spk.Sessions().Len())
}

func TestScenario_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, baseScenario)
	s, err := NewScenario(path, Options{})
	require.NoError(t, err)

	writeScenario(t, dir, `
devices:
  - id: spk
    name: Speakers
    volume: 0.8
    sessions:
      - pid: 200
        instance_id: fixed-id
        display_name: Chat
        volume: 0.3
  - id: mic
    name: Microphone
    direction: capture
    default: [communications]
  - id: hdmi
    name: HDMI
    default: [console, multimedia]
`)
	changes, err := s.Reload()
	require.NoError(t, err)
	assert.Equal(t, []audio.NotificationKind{
		audio.NotifyDeviceStateChanged,   // hdmi enabled
		audio.NotifySessionStateChanged,  // spotify gone
		audio.NotifyVolumeChanged,        // chat volume
		audio.NotifyDefaultDeviceChanged, // console
		audio.NotifyDefaultDeviceChanged, // multimedia
	}, kinds(changes))
	assert.Equal(t, "hdmi", changes[3].DeviceID)

	writeScenario(t, dir, "devices: [\n")
	_, err = s.Reload()
	assert.Error(t, err)
	render, err := s.EnumerateDevices(model.Render)
	require.NoError(t, err)
	assert.Len(t, render, 2, "a broken file keeps the previous topology")
}

func TestScenario_Watch(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeScenario(t, dir, baseScenario)
	s, err := NewScenario(path, Options{Resolver: procinfo.NewResolverWithLookup(func(int) (string, error) {
		return "resolved.exe", nil
	}, time.Minute)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan audio.Notification, 16)
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, out) }()

	updated := baseScenario + "  - id: usb\n    name: USB Headset\n"
	var got audio.Notification
	deadline := time.Now().Add(3 * time.Second)
	for got.Kind == 0 && time.Now().Before(deadline) {
		// The watcher may not be registered yet; rewrite until it reacts.
		writeScenario(t, dir, updated)
		select {
		case got = <-out:
		case <-time.After(100 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, audio.NotifyDeviceAdded, got.Kind)
	assert.Equal(t, "usb", got.Device.ID())
}
