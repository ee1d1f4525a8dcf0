package cmd

import (
	"github.com/spf13/cobra"

	"github.com/timvw/volume-patrol/internal/config"
	"github.com/timvw/volume-patrol/internal/events"
)

var (
	flagSendSocket string
	flagSendStep   int
	flagSendName   string
)

var sendCmd = &cobra.Command{
	Use:   "send <action> [target]",
	Short: "Send a hotkey command to a running watch",
	Long: `Send one command to the socket served by "volume-patrol watch".

Actions: volume_up, volume_down, toggle_mute, toggle_current, next,
previous, select, hide, unhide, next_device, previous_device, lock, unlock,
rename. select, hide, unhide and rename need a target; rename takes the new
name from --name and resets the name when it is empty.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := events.Command{Action: args[0], Step: flagSendStep, Name: flagSendName}
		if len(args) == 2 {
			c.Target = args[1]
		}

		socketPath := flagSendSocket
		if socketPath == "" {
			if cfg, err := config.Load(); err == nil {
				socketPath = cfg.EventSocket
			}
		}
		if socketPath == "" {
			socketPath = events.DefaultSocketPath()
		}
		return events.Send(socketPath, c)
	},
}

func init() {
	sendCmd.Flags().StringVar(&flagSendSocket, "event-socket", "", "unix datagram socket path of the running watch")
	sendCmd.Flags().IntVar(&flagSendStep, "step", 0, "volume step in percent (default from the watch config)")
	sendCmd.Flags().StringVar(&flagSendName, "name", "", "custom session name for rename")
	rootCmd.AddCommand(sendCmd)
}
