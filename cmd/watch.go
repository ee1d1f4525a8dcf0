package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/volume-patrol/internal/events"
	"github.com/timvw/volume-patrol/internal/supervisor"
)

var (
	flagWatchSocket   string
	flagWatchNoSocket bool
)

// eventTTL is how long the store keeps the latest event per target.
const eventTTL = 3 * time.Minute

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track devices and sessions headless, printing events",
	Long: `Run the mixer without a UI. Every device, session and selection change
is printed to stdout as one JSON object per line.

Hotkey commands are accepted as JSON datagrams on a unix socket, e.g.
{"action":"volume_up","step":5}. Use "volume-patrol send" to write them.

When mqtt_broker is configured every event is also published to
<mqtt_topic>/<kind>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchSocket, "event-socket", "", "unix datagram socket path for hotkey commands")
	watchCmd.Flags().BoolVar(&flagWatchNoSocket, "no-socket", false, "do not listen for hotkey commands")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close(context.Background())

	m, err := s.newMixer(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	enc := json.NewEncoder(os.Stdout)
	loop := &supervisor.Loop{
		Mixer:    m,
		Provider: s.provider,
		Store:    events.NewStore(eventTTL),
		OnEvent: func(e events.Event) {
			if err := enc.Encode(e); err != nil {
				s.logger.Warnw("writing event", "error", err)
			}
		},
		VolumeStep: s.cfg.VolumeStep,
		Logger:     s.logger,
	}

	if !flagWatchNoSocket {
		socketPath := flagWatchSocket
		if socketPath == "" {
			socketPath = s.cfg.EventSocket
		}
		if socketPath == "" {
			socketPath = events.DefaultSocketPath()
		}
		collector := events.NewCollector(socketPath, s.logger)
		if err := collector.Start(ctx); err != nil {
			return fmt.Errorf("command socket: %w", err)
		}
		defer func() {
			cancel()
			collector.Wait()
		}()
		fmt.Fprintf(os.Stderr, "commands: listening on %s\n", collector.SocketPath())
		loop.Commands = collector.Commands()
	}

	if s.cfg.MQTTBroker != "" {
		pub := events.NewMQTTPublisher(s.cfg.MQTTBroker, s.cfg.MQTTTopic, s.logger)
		if err := pub.Connect(ctx); err != nil {
			s.logger.Warnw("mqtt unavailable, events will not be published", "broker", s.cfg.MQTTBroker, "error", err)
		} else {
			defer pub.Close()
			loop.Publisher = pub
		}
	}

	// Print the starting topology so consumers see a full picture.
	for _, d := range m.Snapshot().Devices {
		loop.OnEvent(events.New(events.KindDeviceAdded, d.ID, d.Direction, d.Name))
	}
	for _, info := range m.Snapshot().Visible {
		loop.OnEvent(events.New(events.KindSessionAdded, info.Identity, "visible", info.Name))
	}

	err = loop.Run(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
