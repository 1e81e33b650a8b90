package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/hookrelay/internal/client/api"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

var (
	pollLimit       int
	pollUndelivered bool
	pollPeek        bool
	watchInterval   time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Read captured webhook events",
}

var eventsPollCmd = &cobra.Command{
	Use:   "poll <hook-id>",
	Short: "Fetch a page of events",
	Long: `Fetch a page of events for a hook. Undelivered events in the page are
marked delivered unless --peek is set.

Examples:
  hookrelay events poll abc123def456
  hookrelay events poll abc123def456 --undelivered --limit 100
  hookrelay events poll abc123def456 --peek --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}

		page, err := client.PollEvents(cmd.Context(), args[0], pollOptions(pollLimit, pollUndelivered, pollPeek))
		if err != nil {
			return fmt.Errorf("failed to poll events: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), page)
		}

		if page.Count == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No events."))
			return nil
		}
		for _, e := range page.Events {
			fmt.Fprintln(cmd.OutOrStdout(), eventDetail(e))
		}
		if page.HasMore {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("%d events shown, more available.", page.Count)))
		}
		return nil
	},
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch <hook-id>",
	Short: "Stream new events as they arrive",
	Long: `Poll for undelivered events on an interval and show them as they arrive.
Each shown event is marked delivered. Outside a terminal, events are printed
as JSON lines instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}

		hookID := args[0]
		interval := watchInterval
		if interval <= 0 {
			interval = cfg.Watch.Interval
		}
		limit := cfg.Watch.Limit

		// Fail fast on a wrong id or token
		if _, err := client.GetHook(cmd.Context(), hookID); err != nil {
			return fmt.Errorf("failed to get hook: %w", err)
		}

		poll := func(ctx context.Context) (*api.EventPage, error) {
			return client.PollEvents(ctx, hookID, pollOptions(limit, true, false))
		}

		if outputJSON || !isTerminalInteractive() {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return streamJSON(ctx, cmd, poll, interval)
		}

		p := tea.NewProgram(newWatchModel(hookID, poll, interval))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("UI error: %w", err)
		}
		return nil
	},
}

func pollOptions(limit int, undelivered, peek bool) api.PollOptions {
	opts := api.PollOptions{Limit: limit, Undelivered: undelivered}
	if peek {
		mark := false
		opts.MarkDelivered = &mark
	}
	return opts
}

// streamJSON prints each new event as one JSON line until ctx ends.
func streamJSON(ctx context.Context, cmd *cobra.Command, poll pollFunc, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		page, err := poll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			logger.WarnEvent().Err(err).Msg("Poll failed, retrying")
		default:
			for _, e := range page.Events {
				if err := printCompactJSON(cmd.OutOrStdout(), e); err != nil {
					return err
				}
			}
		}

		// Drain a full page immediately
		if err == nil && page.HasMore {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func isTerminalInteractive() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

func init() {
	eventsPollCmd.Flags().IntVar(&pollLimit, "limit", 0, "maximum events to return (server default 50, max 100)")
	eventsPollCmd.Flags().BoolVar(&pollUndelivered, "undelivered", false, "only events not yet delivered, oldest first")
	eventsPollCmd.Flags().BoolVar(&pollPeek, "peek", false, "do not mark returned events as delivered")

	eventsWatchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default from config, 3s)")

	eventsCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON")

	eventsCmd.AddCommand(eventsPollCmd, eventsWatchCmd)
	rootCmd.AddCommand(eventsCmd)
}
