package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/externos/hubd/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the daemon settings file",
	Long: `Inspect and edit the YAML file hubd reads at startup.

Settings are grouped by service: tracker (window polling), icons (icon
extraction), network (Wi-Fi connect behaviour) and display (brightness).
Keys are addressed with dots, for example tracker.poll_interval.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long: `Print the settings the daemon would run with: the file merged over the
built-in defaults, with --port, --log-level and HUBD_* overrides applied.`,
	Example: `  hubd config show
  hubd config show --format json
  HUBD_SERVER_PORT=9090 hubd config show`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change one setting and save the file",
	Long: `Change one setting and write the file back. VALUE is read as a YAML
scalar, so 2s is a duration, false a boolean and 0.2 a number. The whole
file is validated before it is saved.`,
	Example: `  hubd config set tracker.poll_interval 2s
  hubd config set icons.backend x11
  hubd config set network.revert_delay 5s
  hubd config set display.min_brightness 0.2`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print one effective setting",
	Example: `  hubd config get tracker.shell_title
  hubd config get network.scan_on_start
  hubd config get icons`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where the settings file lives",
	RunE:  runConfigPath,
}

var configFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configGetCmd, configPathCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	return encodeConfig(cmd.OutOrStdout(), configFormat, configMgr.Get())
}

func encodeConfig(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
	}
}

// runConfigSet edits the file as written, without flag or env overrides,
// so those never get persisted.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.Set(key, value); err != nil {
		return err
	}

	saved, _ := configMgr.Lookup(key)
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %v (saved to %s)\n", key, saved, configMgr.GetConfigPath())
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	v, ok := configMgr.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", args[0])
	}
	if section, ok := v.(map[string]interface{}); ok {
		return encodeConfig(cmd.OutOrStdout(), "yaml", section)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}
