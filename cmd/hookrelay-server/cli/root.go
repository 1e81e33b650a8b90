package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/internal/db"
	"github.com/pandeptwidyaop/hookrelay/internal/server/config"
	versionpkg "github.com/pandeptwidyaop/hookrelay/internal/version"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

var configPath string

// SetVersion sets the version information
func SetVersion(v, b, g string) {
	versionpkg.Version = v
	versionpkg.BuildDate = b
	versionpkg.GitCommit = g
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hookrelay-server",
	Short: "Hookrelay webhook relay server",
	Long: `Hookrelay captures webhooks sent to public per-hook URLs and holds them
until their owner polls for them or a push channel notifies the owner.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to config file (HOOKRELAY_* environment variables override it)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := versionpkg.GetVersion()
			fmt.Printf("Hookrelay Server\n")
			fmt.Printf("  Version:    %s\n", info.Version)
			fmt.Printf("  Build Time: %s\n", info.BuildDate)
			fmt.Printf("  Git Commit: %s\n", info.GitCommit)
			fmt.Printf("  Go Version: %s\n", info.GoVersion)
		},
	})
}

// bootstrap loads config, configures logging and opens the migrated database.
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Setup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	logger.InfoEvent().
		Str("driver", cfg.Database.Driver).
		Str("data_dir", cfg.Database.DataDir).
		Msg("Connecting to database")

	database, err := db.Connect(db.Config{
		Driver:   cfg.Database.Driver,
		DataDir:  cfg.Database.DataDir,
		Database: cfg.Database.Database,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := db.AutoMigrate(database); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.InfoEvent().Msg("Database migrations completed")

	return cfg, database, nil
}
