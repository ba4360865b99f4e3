// Command gonpm installs npm packages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/willibrandon/gonpm/cmd/gonpm/cli"
	"github.com/willibrandon/gonpm/cmd/gonpm/commands"
	"github.com/willibrandon/gonpm/install"
)

func main() {
	root := cli.NewRootCommand()
	root.AddCommand(commands.NewInstallCommand(cli.Console))
	root.AddCommand(commands.NewVersionCommand(cli.Console))
	root.AddCommand(commands.NewDoctorCommand(cli.Console))

	// Interrupts cancel the run; in-flight visits stop at their next check.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, install.FormatError(err, cli.Console.Colors()))
		stop()
		os.Exit(1)
	}
}
