package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/attackls/am"
	"github.com/teranos/attackls/cmd/attackls/commands"
	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/logger"
)

var rootCmd = &cobra.Command{
	Use:   "attackls",
	Short: "attackls - MITRE ATT&CK technique lookup for editors",
	Long: `attackls - MITRE ATT&CK technique lookup for editors.

attackls is a language server that completes technique names and ids,
describes techniques on hover, and renders technique descriptions as
markdown. The same lookups are available from the command line.

Available commands:
  serve    - Run the language server (stdio, tcp or websocket)
  lookup   - Describe a technique by id
  complete - Show completion candidates for a term
  ls       - List techniques by id prefix
  am       - Manage attackls configuration ("I am")
  version  - Show version information

Examples:
  attackls serve                        # Language server on stdin/stdout
  attackls serve --transport websocket  # LSP at ws://127.0.0.1:7998/lsp plus the HTTP API
  attackls lookup T1059/001             # Describe PowerShell
  attackls complete power               # Completion candidates for "power"
  attackls ls T1003                     # OS Credential Dumping and its subtechniques`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}

		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if _, err := os.Stat(path); err != nil {
				return errors.WithHint(
					errors.Wrapf(err, "config file %s", path),
					"pass an existing TOML file to --config",
				)
			}
			am.SetConfigFile(path)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file layered above the project am.toml")
	rootCmd.PersistentFlags().String("dataset", "", "Path to enterprise-attack.json (overrides dataset.path)")

	// Add commands
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.LookupCmd)
	rootCmd.AddCommand(commands.CompleteCmd)
	rootCmd.AddCommand(commands.LsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
