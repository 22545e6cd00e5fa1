package roles

import "github.com/spf13/cobra"

// RolesCmd is the parent command for realm role queries
var RolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect realm roles",
}

func init() {
	RolesCmd.AddCommand(listCmd)
}
