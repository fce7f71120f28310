package main

import (
	"fmt"

	"carpool/internal/app"
	"carpool/pkg/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var (
		down   int
		status bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create MongoDB collections and indexes",
		Long: `Apply schema migrations to the configured MongoDB database.

Examples:
  carpool migrate
  carpool migrate --status
  carpool migrate --down 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}

			db, err := app.OpenMongo(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			migrator := database.NewMigrator(db.Database, log.Entry())

			switch {
			case status:
				version, err := migrator.CurrentVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d\n", version)
				return nil
			case cmd.Flags().Changed("down"):
				return migrator.Down(ctx, down)
			default:
				return migrator.Up(ctx)
			}
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back to this schema version")
	cmd.Flags().BoolVar(&status, "status", false, "print the current schema version")
	return cmd
}
