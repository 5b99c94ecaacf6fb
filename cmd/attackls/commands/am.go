package commands

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/teranos/attackls/am"
	"github.com/teranos/attackls/display"
	"github.com/teranos/attackls/errors"
	"gopkg.in/yaml.v3"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage attackls configuration",
	Long: `am - Manage attackls configuration ("I am")

Display and manage attackls configuration settings.

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/attackls/am.toml)
3. User config (~/.attackls/am.toml)
4. Project config (./am.toml, searched up the directory tree)
5. --config file
6. Environment variables (ATTACKLS_* prefix, e.g. ATTACKLS_ATTACK_DESCRIPTION)

Examples:
  attackls am show                          # Show current configuration
  attackls am show --format json            # Show configuration in JSON format
  attackls am get attack.completion_format  # Get specific config value
  attackls am set attack.description long   # Write to ~/.attackls/am.toml
  attackls am validate                      # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current attackls configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., attack.description, server.address)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a configuration value",
	Long: `Write a configuration value to a TOML config file, keeping rotated backups.

The value is read as a TOML literal (5, true, ["http://localhost"]) and falls
back to a plain string. The file is only written when the result validates.
A running server picks the change up without a restart.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the current attackls configuration is valid",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var (
	configFormat string
	amSetFile    string
)

func init() {
	// Add flags
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amSetCmd.Flags().StringVar(&amSetFile, "file", "", "Config file to write (default ~/.attackls/am.toml)")

	// Add subcommands
	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		return display.OutputJSON(out, cfg)

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# attackls configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# attackls configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path := amSetFile
	if path == "" {
		path = am.UserConfigPath()
	}
	if path == "" {
		return errors.WithHint(errors.New("no home directory for the user config"), "pass --file")
	}

	if err := am.SetValue(path, args[0], args[1]); err != nil {
		return err
	}
	am.Reset()

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s = %s (%s)\n", args[0], args[1], path)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	if _, err := os.Stat(cfg.Dataset.Path); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "! dataset.path %s is not readable: %v\n", cfg.Dataset.Path, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintln(out, "  2. [SYSTEM]   /etc/attackls/am.toml")
	fmt.Fprintf(out, "  3. [USER]     %s\n", am.UserConfigPath())
	fmt.Fprintln(out, "  4. [PROJECT]  ./am.toml (searches up directories)")
	fmt.Fprintln(out, "  5. [FLAG]     --config")
	fmt.Fprintf(out, "  6. [ENV]      %s_* environment variables\n", am.EnvPrefix)
	fmt.Fprintln(out)

	files := am.ConfigFiles()
	if len(files) == 0 {
		fmt.Fprintln(out, "No config files found, using defaults")
		return nil
	}
	fmt.Fprintln(out, "Loaded files:")
	for _, f := range files {
		fmt.Fprintf(out, "  %s\n", f)
	}
	return nil
}
