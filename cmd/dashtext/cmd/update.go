package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshuadavidthomas/dashtext/internal/domain/release"
	"github.com/joshuadavidthomas/dashtext/internal/service/updater"
)

// checkReport is what `update check` prints as JSON.
type checkReport struct {
	CurrentVersion string              `json:"current_version"`
	Update         *release.UpdateInfo `json:"update"`
}

func newUpdateCommand() *cobra.Command {
	update := &cobra.Command{
		Use:   "update",
		Short: "Check for and install application updates",
	}

	update.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Report whether a newer release is available",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
				defer stop()

				coordinator, err := newCoordinator(nil)
				if err != nil {
					return err
				}

				info, err := coordinator.Check(ctx)
				if err != nil {
					return err
				}

				return writeJSON(cmd.OutOrStdout(), checkReport{
					CurrentVersion: coordinator.CurrentVersion(),
					Update:         info,
				})
			},
		},
		&cobra.Command{
			Use:   "install",
			Short: "Download, verify and install the latest release",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
				defer stop()

				progress := cmd.ErrOrStderr()

				coordinator, err := newCoordinator(func(p release.Progress) {
					printProgress(progress, p)
				})
				if err != nil {
					return err
				}

				result := <-coordinator.Start(ctx)

				_, _ = fmt.Fprintln(progress)
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Outcome.Message())

				return result.Err
			},
		},
		&cobra.Command{
			Use:   "can-install",
			Short: "Report whether the install location is writable",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				coordinator, err := newCoordinator(nil)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), coordinator.CanAutoInstall())

				return err
			},
		},
	)

	return update
}

func newCoordinator(progress updater.ProgressFunc) (*updater.Coordinator, error) {
	opts := updater.OptionsFromConfig(settings)
	opts.Progress = progress

	return updater.New(opts)
}

func printProgress(w io.Writer, p release.Progress) {
	if p.HasTotal() {
		_, _ = fmt.Fprintf(w, "\rDownloading: %3d%% (%d/%d bytes)", p.Percent, p.Downloaded, p.Total)
		return
	}

	_, _ = fmt.Fprintf(w, "\rDownloading: %d bytes", p.Downloaded)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
