package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/drilink/internal/config"
	"github.com/muurk/drilink/internal/ui"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	Long: `Manage the drilink configuration file.

The file holds serial line settings, the transmission requests sent on
connect, simulator settings, default export paths and parameter metadata
overrides. Command line flags take precedence over the file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func configFilePath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if _, err := os.Stat(path); err == nil && !configForce {
		ok := p.Confirm(cmd.InOrStdin(), "Configuration file exists",
			[]string{path, "Its settings will be replaced by the defaults"},
			"Overwrite?")
		if !ok {
			return nil
		}
	}

	if err := config.Default().Save(path); err != nil {
		p.PrintFailure("Cannot write configuration", err)
		return err
	}
	p.PrintSuccess("Configuration written", ui.F("Path", path))
	return nil
}
