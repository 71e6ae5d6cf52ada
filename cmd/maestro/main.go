// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/cmd/maestro/commands"
)

func main() {
	if err := run(); err != nil {
		var toolErr *cli.ToolError
		if errors.As(err, &toolErr) {
			fmt.Fprintf(os.Stderr, "error: %s\n", toolErr.Error())
			if toolErr.Hint != "" {
				fmt.Fprintf(os.Stderr, "%s\n", toolErr.Hint)
			}
			os.Exit(toolErr.Category.ExitCode())
		}

		// Commands whose non-zero exit is an outcome rather than an
		// error (create ending rejected, watch ending failed) return an
		// ExitError; the rendered event stream is already on screen, so
		// no extra "error:" line.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Interrupts cancel the context so streaming commands (create,
	// watch) detach cleanly; the campaign run itself continues
	// server-side.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return commands.Root().Execute(ctx, os.Args[1:])
}
