// Package cli holds the gonpm root command.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/willibrandon/gonpm/cmd/gonpm/output"
	"github.com/willibrandon/gonpm/cmd/gonpm/version"
)

// NewRootCommand creates the root command. Subcommands are added by the
// caller.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gonpm",
		Short: "npm package installer",
		Long: `gonpm installs the dependencies declared in package.json into a flat
node_modules directory, fetching every package exactly once.

Complete documentation is available at https://github.com/willibrandon/gonpm`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.SetVersionTemplate(version.FullInfo() + "\n")

	cmd.PersistentFlags().StringP("dir", "C", "", "Project directory holding package.json (default: current directory)")
	cmd.PersistentFlags().StringP("verbosity", "v", "", "Verbosity level: q[uiet], m[inimal], n[ormal], d[etailed], or diag[nostic]")
	cmd.PersistentFlags().String("registry", "", "Registry base URL")
	return cmd
}

// Console is the console shared by every command.
var Console = output.DefaultConsole()
