// Package cli wires the dwell commands: the terminal UI, the HTTP server
// and a handful of one-shot tools.
package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/dwell/internal/invoice"
	"github.com/sadopc/dwell/internal/logger"
	"github.com/sadopc/dwell/internal/tracker"
	"github.com/sadopc/dwell/internal/tui"
	"github.com/sadopc/dwell/internal/version"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	dbPath     string
	logLevel   string
}

// NewRootCmd builds the dwell command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "dwell",
		Short: "Track truck detention time and bill it.",
		Long: `dwell times how long a truck waits at a shipper or receiver, prices the
detention past the free grace period and turns settled stops into invoices.

Run without a subcommand to open the terminal dashboard.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to configuration file (default <config dir>/dwell/config.yaml)")
	flags.StringVar(&opts.dbPath, "db", "", "path to the SQLite database (overrides the config file)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(opts),
		newCalcCmd(opts),
		newExportCmd(opts),
		newFacilitiesCmd(opts),
		newInvoicesCmd(opts),
		version.Command(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(ctx context.Context, opts *options) error {
	env, err := opts.open()
	if err != nil {
		return err
	}
	defer env.Close()

	closeLog, err := env.logToFile()
	if err != nil {
		return err
	}
	defer closeLog()

	pub, err := env.publisher(ctx)
	if err != nil {
		return err
	}
	defer pub.Close()

	trk := tracker.New(env.store, pub, nil)
	inv := invoice.NewService(env.store, invoice.NewMailer(env.cfg.SMTP), nil)

	logger.InfoKV(ctx, "starting dashboard", "db", env.dbPath, "version", version.Short())

	p := tea.NewProgram(tui.NewApp(trk, inv), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}
