package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	peerchat "github.com/putto11262002/peerchat/app"
	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the backend and serve the local API",
		Long: `Connect to the backend and serve the local API.

The cached rooms are restored first, so the API answers while the backend is
unreachable. The process stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := peerchat.New(ctx, config)
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
}
