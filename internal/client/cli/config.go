package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/hookrelay/internal/client/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hookrelay configuration",
	Long:  `Manage hookrelay client configuration including the authentication token and server URL.`,
}

// setTokenCmd represents the set-token command
var setTokenCmd = &cobra.Command{
	Use:   "set-token [token]",
	Short: "Set authentication token",
	Long: `Set the bearer token sent to the hookrelay server.

Example:
  hookrelay config set-token tok_abc123def456...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveToken(args[0]); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Println(successStyle.Render("✓ Authentication token saved to config file"))
		return nil
	},
}

// setServerCmd represents the set-server command
var setServerCmd = &cobra.Command{
	Use:   "set-server [url]",
	Short: "Set server URL",
	Long: `Set the base URL of the hookrelay server.

Example:
  hookrelay config set-server https://hooks.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(args[0])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid server URL %q: expected http(s)://host[:port]", args[0])
		}

		if err := config.SaveServer(args[0]); err != nil {
			return fmt.Errorf("failed to save server: %w", err)
		}

		fmt.Println(successStyle.Render("✓ Server URL saved to config file"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(setTokenCmd)
	configCmd.AddCommand(setServerCmd)
}
