package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pixelvault/imagecache/cmd/imagecached/cli/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage imagecached configuration",
	Long: `View and modify imagecached configuration.

Without arguments, displays the current effective configuration (flags,
environment, and config file merged by viper). Use subcommands to view
the config file path, create a default config file, or set a single
value in it.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		configDir, err := config.Dir()
		if err != nil {
			return err
		}
		fmt.Println(filepath.Join(configDir, "config.yaml"))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	Long: `Create a default configuration file at the XDG config path.

The file is created at ~/.config/imagecached/config.yaml (or
$XDG_CONFIG_HOME/imagecached/config.yaml if set), pre-populated with
the same defaults the CLI uses when no config file is present.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if _, statErr := os.Stat(configPath); statErr == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if mkdirErr := os.MkdirAll(configDir, 0o750); mkdirErr != nil {
		return mkdirErr
	}

	defaultConfig := map[string]any{
		"dir":            "",
		"insecure":       true,
		"max-requests":   4,
		"cache-max-size": 3,
		"profile-addr":   "",
		"pyroscope-url":  "",
	}
	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if writeErr := os.WriteFile(configPath, data, 0o600); writeErr != nil {
		return writeErr
	}

	fmt.Printf("Created config file: %s\n", configPath)
	return nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Examples:
  imagecached config set max-requests 8
  imagecached config set insecure false
  imagecached config set cache-max-size 50`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func runConfigSet(_ *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	viper.Set(key, parseConfigValue(value))

	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Updated %s = %v\n", key, viper.Get(key))
	return nil
}

// parseConfigValue interprets a raw command-line value as a bool or int
// when it unambiguously looks like one, falling back to a plain string
// (e.g. for --dir or --profile-addr values).
func parseConfigValue(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return value
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
