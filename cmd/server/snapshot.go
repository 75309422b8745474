package main

import (
	"github.com/spf13/cobra"
)

func snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Store one occupancy sample for every open event and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commonRun()
			a, err := newApp(cmd.Context(), appConfig, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.occupancy.SnapshotAll(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("occupancy snapshots stored", "component", programName, "events", n)
			return nil
		},
	}
}
