package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timvw/volume-patrol/internal/supervisor"
)

var (
	flagTheme   string
	flagLogFile string
)

var mixerCmd = &cobra.Command{
	Use:   "mixer",
	Short: "Interactive terminal mixer",
	Long: `Launch an interactive terminal UI over every visible session.

Move with the arrow keys or j/k, check sessions with space, adjust the
volume of the checked sessions (or the followed session, or the device)
with +/-, and mute with m. Enter follows the session under the cursor;
/ finds a session by identity. Hidden sessions are toggled with H.

The terminal is owned by the UI, so logs go to --log-file when set and
are discarded otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMixer(cmd.Context())
	},
}

func init() {
	mixerCmd.Flags().StringVar(&flagTheme, "theme", "dark", "color theme: dark, light")
	mixerCmd.Flags().StringVar(&flagLogFile, "log-file", "", "write logs to this file")
	rootCmd.AddCommand(mixerCmd)
}

func runMixer(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM)
	defer stop()

	logPath := flagLogFile
	if logPath == "" {
		logPath = os.DevNull
	}
	s, err := openSession(ctx, logPath)
	if err != nil {
		return err
	}
	defer s.close(context.Background())

	m, err := s.newMixer(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	tui := &supervisor.TUI{
		Mixer:      m,
		Provider:   s.provider,
		VolumeStep: s.cfg.VolumeStep,
		Theme:      supervisor.ThemeByName(flagTheme),
	}
	return tui.Run(ctx)
}
