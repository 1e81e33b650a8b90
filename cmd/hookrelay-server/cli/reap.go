package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/hookrelay/internal/server/events"
	"github.com/pandeptwidyaop/hookrelay/internal/server/reaper"
)

var reapWindow time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Delete expired events once and exit",
	Long: `Run a single retention sweep, deleting every event older than the
retention window. Useful from cron when the server runs with several replicas.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, database, err := bootstrap()
		if err != nil {
			return err
		}

		window := cfg.Retention.Window
		if reapWindow > 0 {
			window = reapWindow
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		removed, err := reaper.New(events.NewStore(database), window, cfg.Retention.Interval).RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("retention sweep failed: %w", err)
		}

		fmt.Printf("Removed %d event(s) older than %s\n", removed, window)
		return nil
	},
}

func init() {
	reapCmd.Flags().DurationVar(&reapWindow, "window", 0, "override the retention window (e.g. 72h)")
	rootCmd.AddCommand(reapCmd)
}
