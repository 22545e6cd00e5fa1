package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/roles"
	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/users"
	"github.com/drago-vuckovic/sso/internal/config"
)

var (
	cfg        *config.Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "ssoapi",
	Short: "Admin gateway for Keycloak users and realm roles",
	Long: `ssoapi manages the users and realm roles of one Keycloak realm through the
Keycloak admin API. It runs as an HTTP service (serve) or as a CLI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SSO_SERVER_ADDR)")
	rootCmd.PersistentFlags().String("realm", "", "Managed Keycloak realm (env: SSO_PROVIDER_REALM)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: SSO_DEBUG)")

	_ = viper.BindPFlag("server.addr", rootCmd.PersistentFlags().Lookup("server-addr"))
	_ = viper.BindPFlag("provider.realm", rootCmd.PersistentFlags().Lookup("realm"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(users.UsersCmd)
	rootCmd.AddCommand(roles.RolesCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
