package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuadavidthomas/dashtext/internal/config"
	"github.com/joshuadavidthomas/dashtext/internal/logger"
)

var errConfigExists = errors.New("settings file already exists, use --force to overwrite")

func newConfigCommand() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the settings file",
		// The settings file may be missing or broken here, so it is not loaded.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			seedLogger(cmd)
			return nil
		},
	}

	var force bool

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file populated with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeDefaults(cmd, force)
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing settings file")

	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}

func writeDefaults(cmd *cobra.Command, force bool) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigFilename
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", errConfigExists, path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat settings: %w", err)
	}

	cfg := config.Default()
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	logger.InfoKV(cmd.Context(), "Settings written", "path", path)

	_, err := fmt.Fprintln(cmd.OutOrStdout(), path)

	return err
}
