package command

import (
	"fmt"
	"os"

	peerchat "github.com/putto11262002/peerchat/app"
	"github.com/spf13/cobra"
)

const AppName = "peerchat"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Peerchat - local room state engine for the chat backend",
		Long:          "Peerchat keeps an event sourced copy of your rooms, serves it over a local API and runs calls.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "config file (default ./config.yaml when present)")
	cmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "env files loaded before the config")

	cmd.AddCommand(
		NewRunCmd(),
		NewInspectCmd(),
		NewMigrateCmd(),
		NewTokenCmd(),
	)
	return cmd
}

// loadConfig reads the config named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*peerchat.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	loader := &peerchat.FileConfigLoader{File: file, EnvFiles: envFiles}
	config, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, invalidConfig(err)
	}
	return config, nil
}

func invalidConfig(err error) error {
	return fmt.Errorf("invalid config:\n%s", peerchat.FormatValidationErrors(err))
}
