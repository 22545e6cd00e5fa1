package users

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/cmdutil"
	"github.com/drago-vuckovic/sso/internal/directory"
)

var updateCmd = &cobra.Command{
	Use:   "update <user-id>",
	Short: "Update selected fields of a user",
	Long: `Updates only the fields whose flags are given. --role replaces the user's
managed realm roles with exactly the listed set; --clear-roles removes them all.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		upd, err := updateFromFlags(cmd.Flags())
		if err != nil {
			return err
		}

		bundle, err := cmdutil.LoadDirectory(cmd.Context())
		if err != nil {
			return err
		}
		if err := bundle.Directory.Update(cmd.Context(), args[0], upd); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}

		user, err := bundle.Directory.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("user updated but could not be re-read: %w", err)
		}
		pterm.Success.Println("User updated.")
		printUser(user)
		return nil
	},
}

func addUpdateFlags(flags *pflag.FlagSet) {
	flags.String("username", "", "New username")
	flags.String("email", "", "New email address (empty string clears it)")
	flags.Bool("enabled", true, "Enable or disable the account")
	flags.StringSlice("role", nil, "Replace the user's realm roles with this set")
	flags.Bool("clear-roles", false, "Remove all managed realm roles")
}

// updateFromFlags turns the explicitly set flags into a partial update.
func updateFromFlags(flags *pflag.FlagSet) (directory.UserUpdate, error) {
	var upd directory.UserUpdate
	if flags.Changed("username") {
		v, _ := flags.GetString("username")
		upd.Username = &v
	}
	if flags.Changed("email") {
		v, _ := flags.GetString("email")
		upd.Email = &v
	}
	if flags.Changed("enabled") {
		v, _ := flags.GetBool("enabled")
		upd.Enabled = &v
	}

	clearRoles, _ := flags.GetBool("clear-roles")
	switch {
	case clearRoles && flags.Changed("role"):
		return upd, fmt.Errorf("--role and --clear-roles are mutually exclusive")
	case clearRoles:
		roles := []string{}
		upd.Roles = &roles
	case flags.Changed("role"):
		roles, _ := flags.GetStringSlice("role")
		upd.Roles = &roles
	}

	if upd.Username == nil && upd.Email == nil && upd.Enabled == nil && upd.Roles == nil {
		return upd, fmt.Errorf("nothing to update: pass at least one of --username, --email, --enabled, --role, --clear-roles")
	}
	return upd, nil
}
