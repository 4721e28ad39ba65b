package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/service/updater"
)

func newRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart [args...]",
		Short: "Relaunch the installed executable in place of this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.InfoKV(cmd.Context(), "Restarting", "args", args)

			return updater.Restart(args)
		},
	}
}
