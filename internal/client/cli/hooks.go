package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/hookrelay/internal/client/api"
)

var (
	hookName        string
	hookDescription string
	hookMethod      string
	hookConfig      string
	outputJSON      bool
)

var hooksCmd = &cobra.Command{
	Use:     "hooks",
	Aliases: []string{"hook"},
	Short:   "Manage webhook endpoints",
}

var hooksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new hook",
	Long: `Create a new hook and print its public webhook URL.

Examples:
  hookrelay hooks create --name stripe
  hookrelay hooks create --method push-email --delivery-config '{"address":"ops@example.com"}'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}

		req := api.CreateHookRequest{DeliveryMethod: hookMethod}
		if cmd.Flags().Changed("name") {
			req.Name = &hookName
		}
		if cmd.Flags().Changed("description") {
			req.Description = &hookDescription
		}
		if hookConfig != "" {
			if !json.Valid([]byte(hookConfig)) {
				return fmt.Errorf("--delivery-config must be valid JSON")
			}
			req.DeliveryConfig = json.RawMessage(hookConfig)
		}

		hook, err := client.CreateHook(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to create hook: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), hook)
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Hook created"))
		fmt.Fprint(cmd.OutOrStdout(), hookDetail(hook))
		return nil
	},
}

var hooksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your hooks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}

		hooks, err := client.ListHooks(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list hooks: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), hooks)
		}
		if len(hooks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No hooks yet. Create one with 'hookrelay hooks create'."))
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), hooksTable(hooks))
		return nil
	},
}

var hooksGetCmd = &cobra.Command{
	Use:   "get <hook-id>",
	Short: "Show a hook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}

		hook, err := client.GetHook(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get hook: %w", err)
		}

		if outputJSON {
			return printJSON(cmd.OutOrStdout(), hook)
		}
		fmt.Fprint(cmd.OutOrStdout(), hookDetail(hook))
		return nil
	},
}

var hooksDeleteCmd = &cobra.Command{
	Use:     "delete <hook-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a hook and all of its events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := authedClient()
		if err != nil {
			return err
		}

		if err := client.DeleteHook(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete hook: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Hook "+args[0]+" deleted"))
		return nil
	},
}

func init() {
	hooksCreateCmd.Flags().StringVar(&hookName, "name", "", "display name")
	hooksCreateCmd.Flags().StringVar(&hookDescription, "description", "", "free-form description")
	hooksCreateCmd.Flags().StringVar(&hookMethod, "method", "poll", "delivery method: poll, push-message or push-email")
	hooksCreateCmd.Flags().StringVar(&hookConfig, "delivery-config", "", "delivery config as a JSON object")

	hooksCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON")

	hooksCmd.AddCommand(hooksCreateCmd, hooksListCmd, hooksGetCmd, hooksDeleteCmd)
	rootCmd.AddCommand(hooksCmd)
}
