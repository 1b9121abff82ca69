package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"xqcrawler/pkg/config"
	"xqcrawler/pkg/ui"
)

const defaultConfigPath = "xqcrawler.yaml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage xqcrawler configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (XQCRAWLER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with every option",
	Long: `Write the default configuration to 'xqcrawler.yaml', or to the path
given with --config. An existing file is never overwritten.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the configuration after merging every source.

Cookies and the database DSN are masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		return fmt.Errorf("refusing to overwrite %s", path)
	}

	cfg := config.DefaultConfig()
	cfg.Crawler.Keywords = []string{"茅台"}
	if err := cfg.Save(path); err != nil {
		ui.PrintError("Failed to write configuration", err.Error())
		return err
	}

	ui.PrintSuccess("Configuration written to " + path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	cfg.MergeCommandLineFlags(globalFlags(cmd))

	masked := maskConfig(*cfg)
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		ui.PrintError("Failed to read configuration", err.Error())
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		ui.PrintError("Invalid environment", err.Error())
		return err
	}

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Configuration is invalid", "")
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				ui.PrintWarning("  - " + e.Error())
			}
		} else {
			ui.PrintWarning("  - " + err.Error())
		}
		return errors.New("configuration validation failed")
	}

	ui.PrintSuccess("Configuration is valid")
	return nil
}

// maskConfig hides secrets before display.
func maskConfig(cfg config.Config) config.Config {
	if cfg.Login.Cookies != "" {
		cfg.Login.Cookies = "********"
	}
	if cfg.Storage.DSN != "" {
		cfg.Storage.DSN = "********"
	}
	return cfg
}
