package main

import (
	"github.com/spf13/cobra"

	"github.com/iliyamo/memberhub/internal/database"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := commonRun()
			db, err := database.Open(appConfig)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db, appConfig.DBDriver); err != nil {
				return err
			}
			logger.Info("schema up to date", "component", programName, "db_driver", appConfig.DBDriver)
			return nil
		},
	}
}
