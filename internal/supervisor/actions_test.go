package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/events"
)

func session(t *testing.T, m *Mixer, process string) *audio.Session {
	t.Helper()
	s := m.Sessions.FindSessionWithProcessName(process, true)
	require.NotNil(t, s, process)
	return s
}

func TestActions_NothingSelected(t *testing.T) {
	f := newMixerFixture(t, "devices: []\n", MixerOptions{})

	assert.ErrorIs(t, f.mixer.VolumeUp(5), ErrNothingSelected)
	assert.ErrorIs(t, f.mixer.ToggleMute(), ErrNothingSelected)
	_, err := f.mixer.HideCurrent()
	assert.ErrorIs(t, err, ErrNothingSelected)
}

func TestActions_FallBackToDevice(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	m := f.mixer

	require.NoError(t, m.VolumeUp(10))
	assert.Equal(t, 60, m.DeviceSelector.Selected().VolumePercent())
	assert.Equal(t, 50, session(t, m, "spotify.exe").VolumePercent())

	require.NoError(t, m.ToggleMute())
	assert.True(t, m.DeviceSelector.Selected().Muted())
}

func TestActions_SelectorBeatsDevice(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	m := f.mixer

	s, err := m.Select("spotify.exe")
	require.NoError(t, err)
	require.NoError(t, m.VolumeDown(10))
	assert.Equal(t, 40, s.VolumePercent())
	assert.Equal(t, 50, m.DeviceSelector.Selected().VolumePercent())

	// The write went through the provider controls.
	topo := f.scenario.Topology()
	for _, d := range topo.Devices {
		for _, snap := range d.Sessions {
			if snap.Handle.InstanceID() == s.InstanceID() {
				assert.InDelta(t, 0.4, snap.Volume, 1e-9)
			}
		}
	}
}

func TestActions_MultiSelectionBeatsSelector(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	m := f.mixer

	_, err := m.Select("spotify.exe")
	require.NoError(t, err)
	discord := session(t, m, "discord.exe")
	require.NoError(t, m.Multi.SetSessionSelected(discord, true))
	require.NoError(t, m.Multi.SetSessionSelectedIndex(0, true))

	require.NoError(t, m.ToggleMute())
	assert.True(t, discord.Muted())
	assert.True(t, m.Sessions.FindSessionWithPID(0, false).Muted(), "system sounds")
	assert.False(t, session(t, m, "spotify.exe").Muted())
}

func TestActions_Select(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{Hidden: audio.NewNameSet("discord.exe")})
	m := f.mixer

	s, err := m.Select("100")
	require.NoError(t, err)
	assert.Same(t, s, m.Multi.CurrentSession(), "cursor follows the selection")
	assert.Equal(t, s.Identity(), m.Target.Identity())

	_, err = m.Select("discord.exe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hidden")

	_, err = m.Select("nope")
	assert.ErrorIs(t, err, audio.ErrSessionNotFound)

	m.Selector.SetLockSelection(true)
	_, err = m.Select("0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Same(t, s, m.Selector.Selected())
}

func TestActions_SelectRespectsCursorLock(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	m := f.mixer
	require.NoError(t, m.Multi.SetCurrentIndex(0))
	m.Multi.SetLockCurrentIndex(true)

	s, err := m.Select("discord.exe")
	require.NoError(t, err)
	assert.Same(t, s, m.Selector.Selected())
	assert.Equal(t, 0, m.Multi.CurrentIndex())
}

func TestActions_HideCurrent(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	m := f.mixer
	require.NoError(t, m.Multi.SetCurrentIndex(1))

	name, err := m.HideCurrent()
	require.NoError(t, err)
	assert.Equal(t, "spotify.exe", name)
	assert.True(t, m.Hidden().Contains("spotify.exe"))
	assert.Len(t, m.Sessions.Hidden(), 1)

	assert.True(t, m.Unhide("spotify.exe"))
	assert.False(t, m.Unhide("spotify.exe"))
	assert.Empty(t, m.Sessions.Hidden())
}

func TestActions_HideCurrentWithoutProcessName(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	m := f.mixer
	require.NoError(t, m.Multi.SetCurrentIndex(0))

	name, err := m.HideCurrent()
	require.NoError(t, err)
	assert.Equal(t, SystemSoundsName, name)
}

func TestActions_Rename(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{Hidden: audio.NewNameSet("Voice Chat")})
	m := f.mixer
	discord := session(t, m, "discord.exe")
	require.False(t, discord.Hidden())

	var kinds []string
	cancel := m.Subscribe(func(e events.Event) { kinds = append(kinds, e.Kind) })
	defer cancel()

	require.NoError(t, m.Do(events.Command{Action: events.ActionRename, Target: "200", Name: "voice chat"}, 5))
	assert.Equal(t, "voice chat", discord.Name())
	assert.True(t, discord.Hidden(), "a hidden custom name hides the session")
	assert.Contains(t, kinds, events.KindSessionHidden)

	// Lookups reach hidden sessions by their custom name.
	s, err := m.Rename("Voice Chat", "")
	require.NoError(t, err)
	assert.Same(t, discord, s)
	assert.False(t, discord.HasCustomName())
	assert.False(t, discord.Hidden())
	assert.Contains(t, kinds, events.KindSessionShown)

	_, err = m.Rename("nope.exe", "x")
	assert.ErrorIs(t, err, audio.ErrSessionNotFound)
}

func TestActions_Do(t *testing.T) {
	f := newMixerFixture(t, mixerScenarioWithUSB, MixerOptions{})
	m := f.mixer
	spotify := session(t, m, "spotify.exe")

	require.NoError(t, m.Do(events.Command{Action: events.ActionSelect, Target: "spotify.exe"}, 5))
	require.NoError(t, m.Do(events.Command{Action: events.ActionVolumeUp}, 5))
	assert.Equal(t, 55, spotify.VolumePercent())
	require.NoError(t, m.Do(events.Command{Action: events.ActionVolumeDown, Step: 20}, 5))
	assert.Equal(t, 35, spotify.VolumePercent())
	require.NoError(t, m.Do(events.Command{Action: events.ActionVolumeUp}, 0))
	assert.Equal(t, 35+DefaultVolumeStep, spotify.VolumePercent())

	require.NoError(t, m.Do(events.Command{Action: events.ActionToggleMute}, 5))
	assert.True(t, spotify.Muted())

	require.NoError(t, m.Do(events.Command{Action: events.ActionToggleCurrent}, 5))
	assert.True(t, m.Multi.IsSessionSelected(spotify))

	cur := m.Multi.CurrentIndex()
	require.NoError(t, m.Do(events.Command{Action: events.ActionNext}, 5))
	assert.Equal(t, cur+1, m.Multi.CurrentIndex())
	require.NoError(t, m.Do(events.Command{Action: events.ActionPrevious}, 5))
	assert.Equal(t, cur, m.Multi.CurrentIndex())

	require.NoError(t, m.Do(events.Command{Action: events.ActionHide, Target: "game.exe"}, 5))
	assert.True(t, session(t, m, "game.exe").Hidden())
	require.NoError(t, m.Do(events.Command{Action: events.ActionUnhide, Target: "game.exe"}, 5))
	assert.False(t, session(t, m, "game.exe").Hidden())

	require.NoError(t, m.Do(events.Command{Action: events.ActionNextDevice}, 5))
	assert.Equal(t, "usb", m.DeviceSelector.Selected().ID())
	require.NoError(t, m.Do(events.Command{Action: events.ActionPreviousDevice}, 5))
	assert.Equal(t, "spk", m.DeviceSelector.Selected().ID())

	require.NoError(t, m.Do(events.Command{Action: events.ActionLock}, 5))
	assert.True(t, m.Multi.LockSelection())
	assert.True(t, m.Selector.LockSelection())
	require.NoError(t, m.Do(events.Command{Action: events.ActionUnlock}, 5))
	assert.False(t, m.Multi.LockSelection())
	assert.False(t, m.Selector.LockSelection())
}

func TestActions_DoRejectsInvalidCommands(t *testing.T) {
	f := newMixerFixture(t, mixerScenario, MixerOptions{})

	assert.Error(t, f.mixer.Do(events.Command{Action: events.ActionSelect}, 5), "select needs a target")
	assert.Error(t, f.mixer.Do(events.Command{Action: events.ActionRename, Name: "x"}, 5), "rename needs a target")
	assert.Error(t, f.mixer.Do(events.Command{Action: "explode"}, 5))
	assert.Error(t, f.mixer.Do(events.Command{Action: events.ActionVolumeUp, Step: 500}, 5))
	assert.ErrorIs(t, f.mixer.Do(events.Command{Action: events.ActionToggleCurrent}, 5), ErrNothingSelected)
}
