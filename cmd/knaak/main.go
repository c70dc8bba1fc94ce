package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/svsticky/knaak/cmd/knaak/commands"
)

func main() {
	// An interrupt during an authorization wait must close the listener and
	// release the bound port before the process exits; context cancellation
	// propagates that to every component.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args); err != nil {
		code := 1
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(code)
	}
}
