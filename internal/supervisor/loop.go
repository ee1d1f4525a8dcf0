package supervisor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/events"
)

// Watcher is the part of a provider the loop drives.
type Watcher interface {
	Watch(ctx context.Context, out chan<- audio.Notification) error
}

// Publisher receives every recorded event, off the mixer goroutine.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Loop runs a Mixer headless. Provider notifications and socket commands
// are drained onto one goroutine; every resulting event is recorded in
// Store, handed to OnEvent, and queued for Publisher.
type Loop struct {
	Mixer     *Mixer
	Provider  Watcher
	Commands  <-chan events.Command // nil disables command handling
	Store     *events.Store         // optional
	Publisher Publisher             // optional
	OnEvent   func(events.Event)    // optional, called on the mixer goroutine

	VolumeStep int
	Logger     *zap.SugaredLogger
}

const publishQueue = 64

// Run blocks until ctx is done or the provider watch fails.
func (l *Loop) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("loop")

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	notes := make(chan audio.Notification, 64)
	var outbox chan events.Event
	if l.Publisher != nil {
		outbox = make(chan events.Event, publishQueue)
	}

	record := func(e events.Event) {
		if l.Store != nil {
			l.Store.Record(e)
		}
		if l.OnEvent != nil {
			l.OnEvent(e)
		}
		if outbox != nil {
			select {
			case outbox <- e:
			default:
				logger.Warnw("publish queue full, dropping event", "kind", e.Kind, "target", e.Target)
			}
		}
	}

	g.Go(func() error {
		defer close(notes)
		if err := l.Provider.Watch(ctx, notes); err != nil {
			if l.Store != nil {
				l.Store.Record(events.New(events.KindProviderError, "provider", "", err.Error()))
			}
			return fmt.Errorf("provider watch: %w", err)
		}
		return nil
	})

	if outbox != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case e := <-outbox:
					if err := l.Publisher.Publish(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warnw("publish failed", "kind", e.Kind, "error", err)
					}
				}
			}
		})
	}

	g.Go(func() error {
		// The publisher and watcher stop with the mixer goroutine.
		defer stop()
		cancel := l.Mixer.Subscribe(record)
		defer cancel()

		commands := l.Commands
		for {
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-notes:
				if !ok {
					return nil
				}
				l.Mixer.Apply(ctx, n)
			case cmd, ok := <-commands:
				if !ok {
					commands = nil
					continue
				}
				if err := l.Mixer.Do(cmd, l.VolumeStep); err != nil {
					logger.Infow("command rejected", "action", cmd.Action, "target", cmd.Target, "error", err)
					record(events.New(events.KindCommandRejected, cmd.Action, "", err.Error()))
				}
			}
		}
	})

	return g.Wait()
}
