// cmd/logtrigger/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	configPath   string
	triggersPath string
)

func defaultConfigPath() string {
	if p := os.Getenv("LOGTRIGGER_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(config.ExpandHome("~/.logtrigger"), "config.yaml")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "logtrigger",
		Short: "Turn game log lines into timers, overlays, speech and webhooks",
		Long: `logtrigger is the operator CLI for logtriggerd. It writes a starter
configuration, validates trigger files, tests search patterns against log
lines, and reads the trigger history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config.yaml (env LOGTRIGGER_CONFIG)")
	root.PersistentFlags().StringVar(&triggersPath, "triggers", os.Getenv("LOGTRIGGER_TRIGGERS"), "path to triggers.yaml (default: daemon.triggers_file, env LOGTRIGGER_TRIGGERS)")

	root.AddCommand(
		newInitCmd(),
		newValidateCmd(),
		newTestPatternCmd(),
		newHistoryCmd(),
		newTailCmd(),
		newStatusCmd(),
		versionCmd,
	)
	return root
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "logtrigger version %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
	},
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
