package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/hookrelay/internal/client/api"
	"github.com/pandeptwidyaop/hookrelay/internal/client/config"
	versionpkg "github.com/pandeptwidyaop/hookrelay/internal/version"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

var (
	cfgFile    string
	serverFlag string
	tokenFlag  string
	cfg        *config.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "hookrelay",
	Short: "Hookrelay - capture webhooks and poll them from anywhere",
	Long: `Hookrelay gives you public webhook URLs that capture every request
so you can poll for them later, even from behind a firewall.

Example usage:
  hookrelay config set-token <token>       # Configure auth token
  hookrelay hooks create --name github     # Create a hook and print its URL
  hookrelay events poll <hook-id>          # Fetch and acknowledge new events
  hookrelay events watch <hook-id>         # Stream new events as they arrive`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Config commands manage the file themselves
		if cmd.Name() == "config" || (cmd.Parent() != nil && cmd.Parent().Name() == "config") {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if serverFlag != "" {
			cfg.Server.URL = serverFlag
		}
		if tokenFlag != "" {
			cfg.Auth.Token = tokenFlag
		}

		if err := logger.Setup(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: "stderr",
		}); err != nil {
			return fmt.Errorf("failed to setup logger: %w", err)
		}

		return nil
	},
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hookrelay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "server URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "auth token (overrides config)")
}

// SetVersion sets the version information.
func SetVersion(v, bt, gc string) {
	versionpkg.Version = v
	versionpkg.BuildDate = bt
	versionpkg.GitCommit = gc
}

// authedClient returns an API client, failing when no token is configured.
func authedClient() (*api.Client, error) {
	if cfg.Auth.Token == "" {
		return nil, fmt.Errorf("authentication token not configured. Use 'hookrelay config set-token <token>' to configure")
	}
	return api.NewClient(cfg.Server.URL, cfg.Auth.Token, cfg.Server.Timeout), nil
}
