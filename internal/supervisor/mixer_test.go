package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/config"
	"github.com/timvw/volume-patrol/internal/events"
	"github.com/timvw/volume-patrol/internal/model"
	"github.com/timvw/volume-patrol/internal/provider"
)

const mixerScenario = `
devices:
  - id: spk
    name: Speakers
    default: [console, multimedia]
    volume: 0.5
    sessions:
      - pid: 0
      - pid: 100
        process: spotify.exe
        volume: 0.5
      - pid: 200
        process: discord.exe
        volume: 0.8
  - id: mic
    name: Microphone
    direction: capture
    default: [console]
`

const mixerScenarioWithUSB = `
devices:
  - id: spk
    name: Speakers
    default: [console, multimedia]
    volume: 0.5
    sessions:
      - pid: 0
      - pid: 100
        process: spotify.exe
        volume: 0.5
      - pid: 200
        process: discord.exe
        volume: 0.8
  - id: usb
    name: USB Headset
    sessions:
      - pid: 300
        process: game.exe
  - id: mic
    name: Microphone
    direction: capture
    default: [console]
`

type mixerFixture struct {
	mixer    *Mixer
	scenario *provider.Scenario
	path     string
}

// rewrite replaces the scenario file and applies the resulting
// notifications the way the loop would.
func (f *mixerFixture) rewrite(t *testing.T, content string) []audio.Notification {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path, []byte(content), 0o644))
	changes, err := f.scenario.Reload()
	require.NoError(t, err)
	for _, n := range changes {
		f.mixer.Apply(context.Background(), n)
	}
	return changes
}

func newMixerFixture(t *testing.T, content string, opts MixerOptions) *mixerFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sc, err := provider.NewScenario(path, provider.Options{})
	require.NoError(t, err)

	m := NewMixer(sc, opts)
	t.Cleanup(m.Close)
	require.NoError(t, m.Refresh(context.Background()))
	return &mixerFixture{mixer: m, scenario: sc, path: path}
}

func visibleNames(m *Mixer) []string {
	var out []string
	for _, s := range m.Sessions.Visible() {
		out = append(out, s.Name())
	}
	return out
}

func TestMixer_RefreshAttachesSessions(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	m := f.mixer

	assert.Equal(t, 1, m.Devices.Len(), "render filter keeps the microphone out")
	require.NotNil(t, m.DeviceSelector.Selected())
	assert.Equal(t, "spk", m.DeviceSelector.Selected().ID())
	assert.Equal(t, []string{SystemSoundsName, "spotify.exe", "discord.exe"}, visibleNames(m))
	assert.Nil(t, m.Selector.Selected(), "no target configured")
}

func TestMixer_CaptureFilterSelectsCaptureDefault(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{Filter: model.FilterCapture})

	require.NotNil(t, f.mixer.DeviceSelector.Selected())
	assert.Equal(t, "mic", f.mixer.DeviceSelector.Selected().ID())
	assert.Empty(t, f.mixer.Sessions.Visible())
}

func TestMixer_TargetResolvesOnRefresh(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{Target: "100:spotify.exe:render"})

	s := f.mixer.Selector.Selected()
	require.NotNil(t, s)
	assert.Equal(t, "spotify.exe", s.ProcessName())
}

func TestMixer_HiddenNamesAndSnapshot(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{Hidden: audio.NewNameSet("DISCORD.EXE")})
	m := f.mixer

	assert.Equal(t, []string{SystemSoundsName, "spotify.exe"}, visibleNames(m))
	require.NoError(t, m.Multi.SetCurrentIndex(1))
	require.NoError(t, m.Multi.SetSessionSelectedIndex(1, true))

	snap := m.Snapshot()
	require.Len(t, snap.Devices, 1)
	assert.True(t, snap.Devices[0].Default)
	assert.True(t, snap.Devices[0].Selected)
	assert.Equal(t, 50, snap.Devices[0].Volume)
	assert.Equal(t, 3, snap.Devices[0].Sessions)

	require.Len(t, snap.Visible, 2)
	assert.True(t, snap.Visible[1].Selected)
	assert.True(t, snap.Visible[1].Current)
	assert.Equal(t, "100:spotify.exe:render", snap.Visible[1].Identity)
	require.Len(t, snap.Hidden, 1)
	assert.True(t, snap.Hidden[0].Hidden)
	assert.Equal(t, 80, snap.Hidden[0].Volume)

	m.Hidden().Remove("discord.exe")
	assert.Len(t, m.Sessions.Visible(), 3)
	assert.Empty(t, m.Snapshot().Hidden)
}

func TestMixer_ApplyAttachesNewDevices(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})

	f.rewrite(t, mixerScenarioWithUSB)
	assert.Equal(t, 2, f.mixer.Devices.Len())
	assert.Contains(t, visibleNames(f.mixer), "game.exe")

	f.rewrite(t, mixerScenario)
	assert.Equal(t, 1, f.mixer.Devices.Len())
	assert.NotContains(t, visibleNames(f.mixer), "game.exe")
}

func TestMixer_ApplyReselectsDefault(t *testing.T) {
	f := newMixerFixture(t, mixerScenarioWithUSB, MixerOptions{})
	require.Equal(t, "spk", f.mixer.DeviceSelector.Selected().ID())

	f.rewrite(t, `
devices:
  - id: usb
    name: USB Headset
    default: [console]
    sessions:
      - pid: 300
        process: game.exe
`)
	require.NotNil(t, f.mixer.DeviceSelector.Selected())
	assert.Equal(t, "usb", f.mixer.DeviceSelector.Selected().ID())
	assert.Equal(t, []string{"game.exe"}, visibleNames(f.mixer))
}

func TestMixer_FindSession(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{Hidden: audio.NewNameSet("discord.exe")})
	m := f.mixer
	spotify := m.Sessions.FindSessionWithProcessName("spotify.exe", false)
	require.NotNil(t, spotify)

	for _, id := range []string{"spotify.exe", "100", "100:spotify.exe", "100:spotify.exe:render", spotify.InstanceID()} {
		got, err := m.FindSession(id)
		require.NoError(t, err, id)
		assert.Same(t, spotify, got, id)
	}

	hidden, err := m.FindSession("discord.exe")
	require.NoError(t, err)
	assert.True(t, hidden.Hidden())

	_, err = m.FindSession("nope.exe")
	assert.ErrorIs(t, err, audio.ErrSessionNotFound)
}

func TestMixer_Subscribe(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})

	var got []events.Event
	cancel := f.mixer.Subscribe(func(e events.Event) { got = append(got, e) })
	f.rewrite(t, mixerScenarioWithUSB)

	kinds := map[string]string{}
	for _, e := range got {
		require.NoError(t, e.Validate())
		kinds[e.Kind] = e.Target
	}
	assert.Equal(t, "usb", kinds[events.KindDeviceAdded])
	assert.Equal(t, "300:game.exe:render", kinds[events.KindSessionAdded])

	cancel()
	n := len(got)
	f.mixer.Hidden().Add("spotify.exe")
	assert.Len(t, got, n, "no events after cancel")
}

func TestMixer_SubscribeHiddenTransitions(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})

	var kinds []string
	cancel := f.mixer.Subscribe(func(e events.Event) { kinds = append(kinds, e.Kind) })
	defer cancel()

	f.mixer.Hide("spotify.exe")
	assert.Equal(t, []string{events.KindSessionRemoved, events.KindSessionHidden}, kinds)
}

func TestMixerOptionsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Direction = "both"
	cfg.DefaultRole = "communications"
	cfg.HiddenNames = []string{"discord.exe"}
	cfg.Target = "spotify.exe"

	opts, err := MixerOptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, model.FilterBoth, opts.Filter)
	assert.Equal(t, model.RoleCommunications, opts.Role)
	assert.True(t, opts.Hidden.Contains("DISCORD.EXE"))
	assert.Equal(t, "spotify.exe", opts.Target)
	assert.True(t, opts.LockCurrentIndexOnLockSelection)

	cfg.Direction = "sideways"
	_, err = MixerOptionsFromConfig(cfg)
	assert.Error(t, err)
}
