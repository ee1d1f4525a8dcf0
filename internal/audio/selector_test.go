package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timvw/volume-patrol/internal/model"
)

func TestDeviceSelector_NextPreviousWrap(t *testing.T) {
	reg := NewDeviceRegistry(newFakeProvider(
		newFakeDevice("a", model.Render),
		newFakeDevice("b", model.Render),
		newFakeDevice("c", model.Render),
	))
	require.NoError(t, reg.Reload())
	sel := NewDeviceSelector(reg)

	assert.Nil(t, sel.Selected())
	assert.Equal(t, -1, sel.SelectedIndex())

	sel.SelectNext()
	assert.Equal(t, "a", sel.Selected().ID())
	sel.SelectPrevious()
	assert.Equal(t, "c", sel.Selected().ID())
	sel.SelectNext()
	assert.Equal(t, "a", sel.Selected().ID())
	assert.Equal(t, 0, sel.SelectedIndex())

	sel.Deselect()
	sel.SelectPrevious()
	assert.Equal(t, "c", sel.Selected().ID())
}

func TestDeviceSelector_EmptyListIsNoop(t *testing.T) {
	sel := NewDeviceSelector(NewDeviceRegistry(newFakeProvider()))
	var changes counter[SelectionEvent[*Device]]
	sel.OnSelectedChanged(changes.record)

	sel.SelectNext()
	sel.SelectPrevious()
	assert.Nil(t, sel.Selected())
	assert.Equal(t, 0, changes.n())
}

func TestDeviceSelector_Lock(t *testing.T) {
	reg := NewDeviceRegistry(newFakeProvider(newFakeDevice("a", model.Render), newFakeDevice("b", model.Render)))
	require.NoError(t, reg.Reload())
	sel := NewDeviceSelector(reg)
	require.NoError(t, sel.SetSelectedIndex(0))

	var changes counter[SelectionEvent[*Device]]
	sel.OnSelectedChanged(changes.record)
	var locks counter[bool]
	sel.OnLockSelectionChanged(locks.record)

	sel.SetLockSelection(true)
	assert.Equal(t, 1, locks.n())

	sel.SelectNext()
	assert.False(t, sel.SetSelected(reg.FindByID("b")))
	sel.Deselect()
	assert.False(t, sel.SelectDefault())
	assert.NoError(t, sel.SetSelectedIndex(1), "locked index assignment is silent")
	assert.ErrorIs(t, sel.SetSelectedIndex(99), ErrIndexOutOfRange, "range is checked before the lock")
	assert.Equal(t, "a", sel.Selected().ID())
	assert.Equal(t, 0, changes.n())

	sel.SetLockSelection(false)
	sel.SelectNext()
	assert.Equal(t, "b", sel.Selected().ID())
	assert.Equal(t, 1, changes.n())
}

func TestDeviceSelector_IndexOutOfRange(t *testing.T) {
	reg := NewDeviceRegistry(newFakeProvider(newFakeDevice("a", model.Render)))
	require.NoError(t, reg.Reload())
	sel := NewDeviceSelector(reg)

	assert.ErrorIs(t, sel.SetSelectedIndex(1), ErrIndexOutOfRange)
	assert.ErrorIs(t, sel.SetSelectedIndex(-2), ErrIndexOutOfRange)
	require.NoError(t, sel.SetSelectedIndex(0))
	require.NoError(t, sel.SetSelectedIndex(-1))
	assert.Nil(t, sel.Selected())
}

func TestDeviceSelector_AutoClearBypassesLock(t *testing.T) {
	reg := NewDeviceRegistry(newFakeProvider(newFakeDevice("a", model.Render), newFakeDevice("b", model.Render)))
	require.NoError(t, reg.Reload())
	sel := NewDeviceSelector(reg)
	require.NoError(t, sel.SetSelectedIndex(1))
	sel.SetLockSelection(true)

	var changes counter[SelectionEvent[*Device]]
	sel.OnSelectedChanged(changes.record)
	var locks counter[bool]
	sel.OnLockSelectionChanged(locks.record)

	reg.Remove("a")
	assert.Equal(t, "b", sel.Selected().ID())
	assert.Equal(t, 0, sel.SelectedIndex(), "index is derived from the selection")

	reg.Remove("b")
	assert.Nil(t, sel.Selected())
	assert.Equal(t, -1, sel.SelectedIndex())
	require.Equal(t, 1, changes.n())
	assert.Nil(t, changes.events[0].Selected)
	assert.Equal(t, 0, locks.n())
	assert.True(t, sel.LockSelection())
}

func TestDeviceSelector_SelectDefault(t *testing.T) {
	p := newFakeProvider(newFakeDevice("a", model.Render), newFakeDevice("b", model.Render))
	p.defaults[model.Render] = "b"
	reg := NewDeviceRegistry(p)
	require.NoError(t, reg.Reload())
	sel := NewDeviceSelector(reg)

	assert.True(t, sel.SelectDefault())
	assert.Equal(t, "b", sel.Selected().ID())

	p.defaultErr = errFake
	assert.False(t, sel.SelectDefault())
	assert.Equal(t, "b", sel.Selected().ID(), "failure keeps the previous selection")
}

func TestSessionSelector_LazyTargetResolution(t *testing.T) {
	f := newFixture(t, newFakeDevice("spk", model.Render))
	target := NewSessionTarget("200:game.exe")
	sel := NewSessionSelector(f.agg, WithTarget(target))

	var changes counter[SelectionEvent[*Session]]
	sel.OnSelectedChanged(changes.record)

	assert.Nil(t, sel.Selected())

	f.createSession(t, "spk", newFakeSession(100, "app.exe"))
	game := f.createSession(t, "spk", newFakeSession(200, "game.exe"))

	assert.Same(t, game, sel.Selected())
	assert.Equal(t, 1, sel.SelectedIndex())
	assert.Equal(t, 0, changes.n(), "lazy resolution is silent")
}

func TestSessionSelector_TargetChangeReresolves(t *testing.T) {
	f := newFixture(t, newFakeDevice("spk", model.Render))
	app := f.createSession(t, "spk", newFakeSession(100, "app.exe"))
	game := f.createSession(t, "spk", newFakeSession(200, "game.exe"))
	target := NewSessionTarget("app.exe")
	sel := NewSessionSelector(f.agg, WithTarget(target))
	require.Same(t, app, sel.Selected())

	var changes counter[SelectionEvent[*Session]]
	sel.OnSelectedChanged(changes.record)

	target.Set("game.exe", "")
	assert.Same(t, game, sel.Selected())
	assert.Equal(t, 1, changes.n())

	sel.SetLockSelection(true)
	target.Set("app.exe", "")
	assert.Same(t, game, sel.Selected(), "lock holds against target changes")
}

func TestSessionSelector_UnlockAppliesTargetChange(t *testing.T) {
	f := newFixture(t, newFakeDevice("spk", model.Render))
	a := f.createSession(t, "spk", newFakeSession(1, "a.exe"))
	b := f.createSession(t, "spk", newFakeSession(2, "b.exe"))
	target := NewSessionTarget("")
	sel := NewSessionSelector(f.agg, WithTarget(target))
	require.True(t, sel.SetSelected(a))

	var changes counter[SelectionEvent[*Session]]
	sel.OnSelectedChanged(changes.record)

	sel.SetLockSelection(true)
	target.Set("2:b.exe:render", "")
	assert.Same(t, a, sel.Selected())
	assert.Equal(t, 0, changes.n())

	sel.SetLockSelection(false)
	assert.Same(t, b, sel.Selected())
	assert.Equal(t, "2:b.exe:render", target.Identity())
	assert.Equal(t, 1, changes.n())

	// Nothing pending: a plain lock cycle keeps the selection.
	sel.SetLockSelection(true)
	sel.SetLockSelection(false)
	assert.Same(t, b, sel.Selected())
	assert.Equal(t, 1, changes.n())
}

func TestSessionSelector_SetSelectedWritesBackTarget(t *testing.T) {
	f := newFixture(t, newFakeDevice("spk", model.Render))
	f.createSession(t, "spk", newFakeSession(100, "app.exe"))
	game := f.createSession(t, "spk", newFakeSession(200, "game.exe"))
	target := NewSessionTarget("")
	sel := NewSessionSelector(f.agg, WithTarget(target))

	var changes counter[SelectionEvent[*Session]]
	sel.OnSelectedChanged(changes.record)

	require.True(t, sel.SetSelected(game))
	assert.Equal(t, "200:game.exe:render", target.Identity())
	assert.Equal(t, game.InstanceID(), target.InstanceID())
	assert.Equal(t, 1, changes.n(), "own write-back does not re-trigger resolution")

	sel.SelectNext()
	assert.Equal(t, "100:app.exe:render", target.Identity())
}

func TestSessionSelector_HiddenSessionsAreNotSelectable(t *testing.T) {
	f := newFixture(t, newFakeDevice("spk", model.Render))
	s := f.createSession(t, "spk", newFakeSession(100, "app.exe"))
	sel := NewSessionSelector(f.agg)
	require.True(t, sel.SetSelected(s))

	f.names.Add("app.exe")
	assert.Nil(t, sel.Selected(), "moving to Hidden clears the selection")
	assert.False(t, sel.SetSelected(s))
}

func TestSessionSelector_SelectDefault(t *testing.T) {
	f := newFixture(t, newFakeDevice("spk", model.Render))
	sel := NewSessionSelector(f.agg, WithTarget(NewSessionTarget("missing.exe")))
	assert.False(t, sel.SelectDefault())

	first := f.createSession(t, "spk", newFakeSession(1, "a.exe"))
	f.createSession(t, "spk", newFakeSession(2, "b.exe"))
	assert.True(t, sel.SelectDefault())
	assert.Same(t, first, sel.Selected())
}

func TestSessionSelector_LockAndNoop(t *testing.T) {
	f := newFixture(t, newFakeDevice("spk", model.Render))
	f.createSession(t, "spk", newFakeSession(1, "a.exe"))
	f.createSession(t, "spk", newFakeSession(2, "b.exe"))
	sel := NewSessionSelector(f.agg)

	var changes counter[SelectionEvent[*Session]]
	sel.OnSelectedChanged(changes.record)

	sel.SetLockSelection(true)
	sel.SelectNext()
	assert.Nil(t, sel.Selected())
	assert.Equal(t, 0, changes.n())

	sel.SetLockSelection(false)
	sel.SelectNext()
	assert.Equal(t, 0, sel.SelectedIndex())
	assert.Equal(t, 1, changes.n())
}
