package supervisor

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/events"
)

// scriptedWatcher sends a fixed batch of notifications and then blocks
// until cancelled, or fails right away when err is set.
type scriptedWatcher struct {
	notes []audio.Notification
	err   error
}

func (w *scriptedWatcher) Watch(ctx context.Context, out chan<- audio.Notification) error {
	if w.err != nil {
		return w.err
	}
	for _, n := range w.notes {
		select {
		case out <- n:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

type closingWatcher struct{}

func (closingWatcher) Watch(context.Context, chan<- audio.Notification) error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

// pendingChanges rewrites the fixture's file and returns the notifications
// without applying them.
func pendingChanges(t *testing.T, f *mixerFixture, content string) []audio.Notification {
	t.Helper()
	require.NoError(t, os.WriteFile(f.path, []byte(content), 0o644))
	changes, err := f.scenario.Reload()
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	return changes
}

func TestLoop_AppliesNotificationsAndCommands(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	watcher := &scriptedWatcher{notes: pendingChanges(t, f, mixerScenarioWithUSB)}
	commands := make(chan events.Command, 4)
	store := events.NewStore(time.Minute)
	pub := &recordingPublisher{}

	var mu sync.Mutex
	var seen []events.Event
	loop := &Loop{
		Mixer:     f.mixer,
		Provider:  watcher,
		Commands:  commands,
		Store:     store,
		Publisher: pub,
		OnEvent: func(e events.Event) {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
		},
		VolumeStep: 10,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, added := store.Latest("usb")
		return added
	}, 2*time.Second, 10*time.Millisecond)

	commands <- events.Command{Action: events.ActionSelect, Target: "game.exe"}
	commands <- events.Command{Action: events.ActionVolumeDown}
	commands <- events.Command{Action: events.ActionSelect, Target: "nope.exe"}

	require.Eventually(t, func() bool {
		for _, k := range pub.kinds() {
			if k == events.KindCommandRejected {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	game := f.mixer.Sessions.FindSessionWithProcessName("game.exe", false)
	require.NotNil(t, game)
	assert.Equal(t, 90, game.VolumePercent())

	rejected, _ := store.Latest(events.ActionSelect)
	assert.Equal(t, events.KindCommandRejected, rejected.Kind)
	assert.Contains(t, rejected.Message, "nope.exe")

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, seen)
}

func TestLoop_ClosedCommandsKeepRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	commands := make(chan events.Command)
	close(commands)
	store := events.NewStore(time.Minute)
	loop := &Loop{
		Mixer:    f.mixer,
		Provider: &scriptedWatcher{notes: pendingChanges(t, f, mixerScenarioWithUSB)},
		Commands: commands,
		Store:    store,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := store.Latest("usb")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestLoop_WatchErrorStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	store := events.NewStore(time.Minute)
	loop := &Loop{
		Mixer:     f.mixer,
		Provider:  &scriptedWatcher{err: errors.New("device lost")},
		Store:     store,
		Publisher: &recordingPublisher{},
	}

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")

	e, ok := store.Latest("provider")
	require.True(t, ok)
	assert.Equal(t, events.KindProviderError, e.Kind)
}

func TestLoop_WatchEndReturns(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newMixerFixture(t, mixerScenario, MixerOptions{})
	loop := &Loop{Mixer: f.mixer, Provider: closingWatcher{}, Publisher: &recordingPublisher{}}

	assert.NoError(t, loop.Run(context.Background()))
}
