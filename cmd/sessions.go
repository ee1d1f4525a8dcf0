package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/volume-patrol/internal/model"
	"github.com/timvw/volume-patrol/internal/supervisor"
)

var (
	flagSessionsHidden bool
	flagSessionsJSON   bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List audio sessions",
	Long: `List the visible sessions on every tracked device.

Sessions whose process or custom name is in hidden_names are listed
separately with --hidden. The session the configured target resolves to
is marked with ">".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		m, err := s.newMixer(ctx)
		if err != nil {
			return err
		}
		defer m.Close()

		snap := m.Snapshot()
		followed := m.Selector.Selected()
		for i := range snap.Visible {
			snap.Visible[i].Current = followed != nil && snap.Visible[i].InstanceID == followed.InstanceID()
		}
		if !flagSessionsHidden {
			snap.Hidden = nil
		}

		if flagSessionsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		if len(snap.Visible) == 0 {
			fmt.Fprintln(os.Stderr, "no sessions found")
		}
		for _, info := range snap.Visible {
			fmt.Println(model.FormatSessionLine(info))
		}
		if len(snap.Hidden) > 0 {
			fmt.Println("hidden:")
			for _, info := range snap.Hidden {
				fmt.Println(model.FormatSessionLine(info))
			}
		}
		return nil
	},
}

var flagFindJSON bool

var findCmd = &cobra.Command{
	Use:   "find <identifier>",
	Short: "Resolve a session identifier",
	Long: `Resolve a loosely typed session identifier the way the selector does.

Accepted forms: "1234", "app.exe", "1234:app.exe", "1234:app.exe:render"
or a session instance id. Hidden sessions are included.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		m, err := s.newMixer(ctx)
		if err != nil {
			return err
		}
		defer m.Close()

		found, err := m.FindSession(args[0])
		if err != nil {
			return err
		}
		info := supervisor.Describe(found)

		if flagFindJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Println(model.FormatSessionLine(info))
		fmt.Printf("  instance: %s\n  device:   %s\n", info.InstanceID, info.DeviceID)
		if info.Hidden {
			fmt.Println("  hidden")
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&flagSessionsHidden, "hidden", false, "include hidden sessions")
	sessionsCmd.Flags().BoolVar(&flagSessionsJSON, "json", false, "output JSON")
	findCmd.Flags().BoolVar(&flagFindJSON, "json", false, "output JSON")
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(findCmd)
}
