package command

import (
	"encoding/json"
	"fmt"

	"github.com/putto11262002/peerchat/core"
	"github.com/spf13/cobra"
)

func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue a local API token",
		Long: `Issue a local API token signed with auth.secret.

The secret must be set in the config or PEERCHAT_AUTH_SECRET, otherwise every
process generates its own and the token is rejected by the running client.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			subject := "local"
			if len(args) > 0 {
				subject = args[0]
			}
			session, err := core.NewTokenAuth(config.Auth.Secret).Issue(subject, config.Auth.TokenTTL)
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(map[string]any{
					"subject":    session.Subject,
					"token":      session.Token,
					"expires_at": session.ExpiresAt,
				})
			}
			fmt.Fprintln(out, session.Token)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the token with its expiry as JSON")
	return cmd
}
