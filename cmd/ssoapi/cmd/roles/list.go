package roles

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/cmdutil"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the realm roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := cmdutil.LoadDirectory(cmd.Context())
		if err != nil {
			return err
		}

		roles, err := bundle.Directory.ListRoles(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}
		if len(roles) == 0 {
			pterm.Info.Println("The realm has no roles.")
			return nil
		}

		table := pterm.TableData{{"NAME", "COMPOSITE", "DESCRIPTION"}}
		for _, r := range roles {
			table = append(table, []string{r.Name, strconv.FormatBool(r.Composite), r.Description})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}
