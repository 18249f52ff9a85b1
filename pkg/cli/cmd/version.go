package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// 版本信息（编译时注入）
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// versionCmd version命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Workflow Engine CLI\n")
		fmt.Fprintf(out, "  Version:    %s\n", Version)
		fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)

		health, err := newClient().Health()
		if err != nil {
			fmt.Fprintf(out, "  Server:     unreachable (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "  Server:     %s (%s, uptime %s)\n", health.Version, health.Status, health.Uptime)
		return nil
	},
}
