package command

import (
	"encoding/json"
	"fmt"

	"github.com/putto11262002/peerchat/core"
	"github.com/spf13/cobra"
)

type inspectOutput struct {
	Room     *core.Room      `json:"room,omitempty"`
	View     *core.RoomView  `json:"view"`
	Scope    *core.ViewScope `json:"scope,omitempty"`
	Messages []core.Message  `json:"messages,omitempty"`
}

func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <roomKey>",
		Short: "Fold a cached room log and print the derived state",
		Long: `Fold a cached room log and print the derived state as JSON.

With --messages the visible messages of the selected scope are printed as well,
sorted by timestamp. The scope defaults to the general channel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := core.NewSQLiteDB(config.SQLite.File, &core.SQLiteDBOption{Mode: "ro"})
			if err != nil {
				return err
			}
			defer db.Close()

			roomKey := args[0]
			store := core.NewSQLiteLogStore(db.DB)
			room, err := store.GetRoom(cmd.Context(), roomKey)
			if err != nil {
				return err
			}
			log, err := store.LoadLog(cmd.Context(), roomKey)
			if err != nil {
				return err
			}
			if room == nil && len(log) == 0 {
				return fmt.Errorf("room %s is not cached", roomKey)
			}

			out := inspectOutput{Room: room, View: core.Fold(roomKey, log)}
			if withMessages, _ := cmd.Flags().GetBool("messages"); withMessages {
				scope := core.ViewScope{}
				scope.ChannelID, _ = cmd.Flags().GetString("channel")
				scope.DMKey, _ = cmd.Flags().GetString("dm")
				scope.ThreadRootID, _ = cmd.Flags().GetString("thread")
				out.Scope = &scope
				out.Messages = core.Presentation(log, scope)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().Bool("messages", false, "include the visible messages of a scope")
	cmd.Flags().String("channel", "", "text channel id")
	cmd.Flags().String("dm", "", "dm key")
	cmd.Flags().String("thread", "", "thread root message id")
	cmd.MarkFlagsMutuallyExclusive("dm", "thread")
	return cmd
}
