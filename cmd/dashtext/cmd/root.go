package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuadavidthomas/dashtext/internal/config"
	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/version"
)

// rootLoggerName prefixes every log line written by the CLI.
const rootLoggerName = "dashtext"

var (
	// configPath to the configuration YAML file.
	configPath string

	// logLevel overrides the configured log level when set.
	logLevel string

	// settings are loaded before any subcommand runs.
	settings *config.Config

	// rootCmd represents the dashtext executable.
	rootCmd = &cobra.Command{
		Use:          "dashtext",
		Short:        "Quick-capture notes from anywhere",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			seedLogger(cmd)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			if err = config.Validate(cfg); err != nil {
				return err
			}

			if err = logger.SetLevelFromString(cfg.LogLevel); err != nil {
				return err
			}

			settings = cfg

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// seedLogger stores the named root logger in the command context.
func seedLogger(cmd *cobra.Command) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(logger.ToContext(ctx, logger.Logger().Named(rootLoggerName)))
}

// Execute runs the dashtext CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersion(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")

	rootCmd.AddCommand(newUpdateCommand(), newRestartCommand(), newConfigCommand())
}
