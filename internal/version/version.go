// Package version carries build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/sadopc/dwell/internal/version.Version=1.2.0"
package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// Short returns the semantic version.
func Short() string {
	return Version
}

// Full returns the version with commit and build time.
func Full() string {
	return fmt.Sprintf("dwell %s (commit %s, built %s)", Version, Commit, BuildTime)
}

// Command returns the `version` subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	}
}
