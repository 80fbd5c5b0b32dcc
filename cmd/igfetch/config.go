package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igfetch/pkg/config"
	"igfetch/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igfetch configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGFETCH_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write the default configuration, including every selector and wait
budget, so it can be edited when the site changes its markup.

The file is created as '.igfetch.yaml' unless --config names another path.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout(), noColor)

	path := configFile
	if path == "" {
		path = ".igfetch.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	p.Success("Configuration file created: " + path)
	fmt.Fprintln(p.Writer(), "\nNext steps:")
	fmt.Fprintln(p.Writer(), "1. Adjust selectors, timeouts and the download mode")
	fmt.Fprintln(p.Writer(), "2. Run 'igfetch config validate' to check the configuration")
	fmt.Fprintln(p.Writer(), "3. Start with 'igfetch stories <username>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout(), noColor)

	cfg, err := config.Load(configFile, commandFlags(cmd))
	if err != nil {
		return err
	}

	display := *cfg
	if display.Ledger.RedisPassword != "" {
		display.Ledger.RedisPassword = "***"
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	p.Highlight("Current Configuration")
	fmt.Fprintln(p.Writer())
	fmt.Fprint(p.Writer(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout(), noColor)

	cfg, err := config.Load(configFile, commandFlags(cmd))
	if err != nil {
		p.Error("Configuration validation failed", err)
		return errRunFailed
	}

	if cfg.Persist() {
		if err := os.MkdirAll(cfg.Download.OutputDir, 0755); err != nil {
			p.Error("Cannot create output directory", err)
			return errRunFailed
		}
	}

	p.Success("Configuration is valid")
	fmt.Fprintln(p.Writer(), "\nConfiguration summary:")
	p.Info("  Entry URL", cfg.Site.EntryURL)
	p.Info("  Mode", cfg.Download.Mode)
	p.Info("  Output directory", cfg.Download.OutputDir)
	p.Info("  Concurrency", fmt.Sprint(cfg.Validation.Concurrency))
	p.Info("  Ledger", cfg.Ledger.Backend)
	p.Info("  Log level", cfg.Logging.Level)
	return nil
}
