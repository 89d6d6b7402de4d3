// Package main provides the errica command line tool, used to validate a
// configuration, check channel health and send test alerts.
//
// Validate a configuration file:
//
//	errica validate --config errica.yaml
//
// Check every enabled channel:
//
//	errica health
//
// Send an alert:
//
//	errica send "Disk almost full" --level WARNING --field host=db-1
//
// Without --config the configuration comes from the environment
// (APP_NAME, TELEGRAM_BOT_TOKEN, SLACK_WEBHOOK_URL, ERRICA_CONFIG_FILE, ...).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	sets       []string
	logLevel   string
}

func buildRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "errica",
		Short: "errica - route application errors to alert channels",
		Long: `errica routes errors and alerts to console, Telegram, Slack, Discord,
generic webhooks and Redis according to a per-severity routing table.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to YAML configuration file (default: environment)")
	rootCmd.PersistentFlags().StringArrayVar(&flags.sets, "set", nil, "Override a setting, e.g. --set channels.slack.enabled=true")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: silent, error, warn, info, debug")

	rootCmd.AddCommand(
		buildValidateCmd(flags),
		buildHealthCmd(flags),
		buildSendCmd(flags),
		buildTestCmd(flags),
		buildStatsCmd(flags),
		buildConfigCmd(flags),
	)
	return rootCmd
}
