package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for user management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage realm users",
	Long:  `Commands for managing the users of the configured Keycloak realm through the admin API.`,
}

func init() {
	listCmd.Flags().IntVar(&firstFlag, "first", 0, "Offset of the first user to return")
	listCmd.Flags().IntVar(&maxFlag, "max", 0, "Page size (default 100, at most 1000)")
	listCmd.Flags().StringVar(&filterFlag, "filter", "", `Filter expression over id, username, email and enabled, e.g. 'enabled == true'`)

	createCmd.Flags().StringVar(&usernameFlag, "username", "", "Username of the user (required)")
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the user (use --stdin to avoid shell history)")
	createCmd.Flags().StringSliceVar(&rolesInput, "role", []string{}, "Realm role(s) to assign to the user")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")

	addUpdateFlags(updateCmd.Flags())

	UsersCmd.AddCommand(listCmd)
	UsersCmd.AddCommand(getCmd)
	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(updateCmd)
	UsersCmd.AddCommand(deleteCmd)
}
