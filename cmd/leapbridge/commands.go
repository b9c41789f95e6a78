package main

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/config"
)

// newRootCommand creates the command tree. Running the binary with no
// subcommand starts the service.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "leapbridge",
		Short:         "Lutron LEAP bridge gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath(cmd))
		},
	}

	cmd.PersistentFlags().String("config", getConfigPath(), "Path to the YAML configuration file")

	cmd.AddCommand(
		newRunCommand(),
		newVersionCommand(),
		newRulesCommand(),
		newTriggersCommand(),
		newTokenCommand(),
		newInspectCommand(),
	)

	return cmd
}

// newRunCommand creates the run command.
func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gateway service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath(cmd))
		},
	}
}

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", date)
		},
	}
}

// configPath returns the --config flag value.
func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return getConfigPath()
	}
	return path
}

// loadConfig loads the configuration named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// renderTable prints rows with the first row as header.
func renderTable(w io.Writer, rows pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(rows).Render()
}
