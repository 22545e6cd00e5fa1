package users

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/cmdutil"
	"github.com/drago-vuckovic/sso/internal/directory"
)

var (
	firstFlag  int
	maxFlag    int
	filterFlag string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of realm users",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := cmdutil.LoadDirectory(cmd.Context())
		if err != nil {
			return err
		}

		users, err := bundle.Directory.List(cmd.Context(), directory.ListOptions{
			First:  firstFlag,
			Max:    maxFlag,
			Filter: filterFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		if len(users) == 0 {
			pterm.Info.Println("No users found.")
			return nil
		}

		table := pterm.TableData{{"ID", "USERNAME", "EMAIL", "ENABLED"}}
		for _, u := range users {
			table = append(table, []string{u.ID, u.Username, u.Email, strconv.FormatBool(u.Enabled)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}
