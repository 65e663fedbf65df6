package command

import (
	"fmt"

	"github.com/putto11262002/peerchat/core"
	"github.com/spf13/cobra"
)

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the cache schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := core.NewSQLiteDB(config.SQLite.File, &core.SQLiteDBOption{Mode: "rwc", JournalMode: "WAL"})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return err
			}
			version, err := core.MigrationVersion(db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s migrated to version %d\n", config.SQLite.File, version)
			return nil
		},
	}
}
