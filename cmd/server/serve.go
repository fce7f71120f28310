package main

import (
	"carpool/internal/app"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var withoutSweeper bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and stale participation sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Start(ctx, !withoutSweeper); err != nil {
				return err
			}
			return a.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&withoutSweeper, "no-sweeper", false, "do not release stale pending participations from this instance")
	return cmd
}
