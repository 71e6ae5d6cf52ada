// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package experiment implements the "maestro experiment" command
// group: significance analysis, metric recording, and offline
// sample-size planning for campaign A/B experiments.
package experiment

import (
	"context"
	"time"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
)

// Command returns the "experiment" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "experiment",
		Summary: "A/B experiment analysis commands",
		Description: `Analyze and plan campaign A/B experiments.

Every completed campaign carries an experiment: a control arm plus
one arm per content variant, with deterministic traffic windows.
Record observed counts as they come in, then analyze to get the
two-proportion z-test verdict.`,
		Subcommands: []*cli.Command{
			analyzeCommand(),
			recordCommand(),
			planCommand(),
		},
	}
}

// callContext returns a context with a reasonable timeout for
// one-shot service calls derived from the provided parent.
func callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}
