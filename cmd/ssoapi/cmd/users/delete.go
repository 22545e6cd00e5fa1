package users

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/cmdutil"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a realm user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := cmdutil.LoadDirectory(cmd.Context())
		if err != nil {
			return err
		}
		if err := bundle.Directory.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		pterm.Success.Printf("User %s deleted.\n", args[0])
		return nil
	},
}
