package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagDevicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List tracked audio devices",
	Long: `List the active devices of the configured direction.

The default device for the configured role is marked with "*", the
device the mixer would select with ">".`,
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
		if flagDevicesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap.Devices)
		}

		if len(snap.Devices) == 0 {
			fmt.Fprintln(os.Stderr, "no devices found")
			return nil
		}
		for _, d := range snap.Devices {
			marker := " "
			if d.Selected {
				marker = ">"
			}
			def := " "
			if d.Default {
				def = "*"
			}
			line := fmt.Sprintf("%s%s %-40s %-8s %3d%% %2d sessions  %s", marker, def, d.ID, d.Direction, d.Volume, d.Sessions, d.Name)
			if d.Muted {
				line += " (muted)"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&flagDevicesJSON, "json", false, "output JSON")
	rootCmd.AddCommand(devicesCmd)
}
