package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/hookrelay/internal/client/api"
	versionpkg "github.com/pandeptwidyaop/hookrelay/internal/version"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Display the client build information and, when reachable, the server version",
	Run: func(cmd *cobra.Command, _ []string) {
		info := versionpkg.GetVersion()
		fmt.Printf("Hookrelay Client\n")
		fmt.Printf("  Version:    %s\n", info.Version)
		fmt.Printf("  Build Time: %s\n", info.BuildDate)
		fmt.Printf("  Git Commit: %s\n", info.GitCommit)
		fmt.Printf("  Go Version: %s\n", info.GoVersion)
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		server, err := api.NewClient(cfg.Server.URL, "", 0).ServerVersion(ctx)
		if err != nil {
			logger.DebugEvent().Err(err).Msg("Server version unavailable")
			fmt.Printf("\nServer (%s): unreachable\n", cfg.Server.URL)
			return
		}

		fmt.Printf("\nServer (%s)\n", cfg.Server.URL)
		fmt.Printf("  Version:    %s\n", server.Version)

		if warning := versionWarning(info.Version, server.Version); warning != "" {
			fmt.Println()
			fmt.Println(warnStyle.Render(warning))
		}
	},
}

// versionWarning describes a client/server release gap, or returns "".
func versionWarning(client, server string) string {
	switch {
	case versionpkg.IsNewer(client, server):
		return fmt.Sprintf("⚠ Server runs %s, newer than this client (%s). Some commands may be missing.", server, client)
	case versionpkg.IsNewer(server, client):
		return fmt.Sprintf("⚠ Client %s is newer than the server (%s).", client, server)
	}
	return ""
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
