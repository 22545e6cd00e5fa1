package users

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/cmdutil"
	"github.com/drago-vuckovic/sso/internal/directory"
)

var getCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "Show a user with its effective realm roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := cmdutil.LoadDirectory(cmd.Context())
		if err != nil {
			return err
		}

		user, err := bundle.Directory.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		printUser(user)
		return nil
	},
}

func printUser(u *directory.User) {
	pterm.DefaultSection.Println(u.Username)
	pterm.Printf("ID:       %s\n", u.ID)
	pterm.Printf("Email:    %s\n", u.Email)
	pterm.Printf("Enabled:  %t\n", u.Enabled)
	roles := "(none)"
	if len(u.Roles) > 0 {
		roles = strings.Join(u.Roles, ", ")
	}
	pterm.Printf("Roles:    %s\n", roles)
}
