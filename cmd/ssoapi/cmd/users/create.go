package users

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/cmdutil"
	"github.com/drago-vuckovic/sso/internal/directory"
)

var (
	usernameFlag string
	emailFlag    string
	passwordFlag string
	rolesInput   []string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an enabled realm user with a permanent password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if usernameFlag == "" {
			return fmt.Errorf("--username flag is required")
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(os.Stderr, "Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		bundle, err := cmdutil.LoadDirectory(cmd.Context())
		if err != nil {
			return err
		}

		result, err := bundle.Directory.Create(cmd.Context(), directory.NewUser{
			Username: usernameFlag,
			Email:    emailFlag,
			Password: password,
			Roles:    rolesInput,
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		pterm.Success.Println("User created successfully!")
		pterm.Printf("User ID:  %s\n", result.ID)
		pterm.Printf("Username: %s\n", usernameFlag)
		if len(result.Roles.Added) > 0 {
			pterm.Printf("Roles:    %s\n", strings.Join(result.Roles.Added, ", "))
		}
		if !result.Complete() {
			pterm.Warning.Printf("Initial roles were not fully assigned: %v\n", result.RolesErr)
			pterm.Warning.Printf("Retry with: ssoapi users update %s --role %s\n", result.ID, strings.Join(rolesInput, ","))
		}
		return nil
	},
}
