package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Commands
// =============================================================================

func buildValidateCmd(flags *globalFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Validate the enabled channels and the routing table.

With --watch the file given by --config is validated again every time it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, flags, watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Revalidate whenever the config file changes")
	return cmd
}

func buildHealthCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check every enabled channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, flags, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func buildSendCmd(flags *globalFlags) *cobra.Command {
	var (
		level    string
		channels []string
		fields   []string
	)
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send an alert",
		Long: `Send an alert through the routing table, or to the channels named by --channel.

Fields are attached in the order given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, flags, args[0], level, channels, fields)
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "INFO", "Severity: DEBUG, INFO, WARNING, ERROR, CRITICAL")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "Send to these channels instead of the routed ones")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Context field as key=value")
	return cmd
}

func buildTestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Send a test event to every enabled channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, flags)
		},
	}
}

func buildStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show enabled channels and construction failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, flags)
		},
	}
}

func buildConfigCmd(flags *globalFlags) *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd, flags, showSecrets)
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Do not redact tokens and passwords")
	return cmd
}
