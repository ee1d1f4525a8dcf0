package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/model"
)

var (
	flagDefaultDirection string
	flagDefaultRole      string
)

var defaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Show the default device for a direction and role",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := model.ParseDirection(flagDefaultDirection)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		roleName := flagDefaultRole
		if roleName == "" {
			roleName = s.cfg.DefaultRole
		}
		role, err := model.ParseRole(roleName)
		if err != nil {
			return err
		}

		reg := audio.NewDeviceRegistry(s.provider,
			audio.WithLogger(s.logger),
			audio.WithDirectionFilter(model.FilterBoth),
			audio.WithDefaultRole(role),
		)
		defer reg.Close()
		if err := reg.Reload(); err != nil {
			s.logger.Warnw("reload incomplete", "error", err)
		}

		d := reg.Default(dir, role)
		if d == nil {
			return fmt.Errorf("no default %s device for role %s", dir, role)
		}
		fmt.Printf("%s\t%s\n", d.ID(), d.Name())
		return nil
	},
}

func init() {
	defaultCmd.Flags().StringVar(&flagDefaultDirection, "direction", "render", "device direction: render, capture")
	defaultCmd.Flags().StringVar(&flagDefaultRole, "role", "", "role: console, multimedia, communications (default from config)")
	rootCmd.AddCommand(defaultCmd)
}
