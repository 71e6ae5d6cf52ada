// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete Maestro CLI command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	campaigncmd "github.com/maestro-foundation/maestro/cmd/maestro/campaign"
	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	experimentcmd "github.com/maestro-foundation/maestro/cmd/maestro/experiment"
	"github.com/maestro-foundation/maestro/lib/version"
)

// Root builds and returns the complete Maestro CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "maestro",
		Description: `Maestro: campaign orchestration engine.

Run marketing campaigns through a five-stage agent pipeline
(strategy, segmentation, content, compliance, experiment), stream
agent output live, and analyze the resulting A/B experiments.`,
		Subcommands: []*cli.Command{
			campaigncmd.Command(),
			experimentcmd.Command(),
			campaigncmd.StatusCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("maestro %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run a campaign and watch the agents work",
				Command:     "maestro campaign create --name 'Spring Sale' --objective 'Re-engage customers inactive for 60 days'",
			},
			{
				Description: "See every stored campaign",
				Command:     "maestro campaign list",
			},
			{
				Description: "Reattach to a running campaign",
				Command:     "maestro campaign watch camp_1a2b3c4d5e6f",
			},
			{
				Description: "Record experiment results and get the verdict",
				Command:     "maestro experiment record exp_9f8e7d6c5b4a --variant control --impressions 10000 --conversions 805",
			},
			{
				Description: "Size an experiment before running it",
				Command:     "maestro experiment plan --baseline 0.08 --delta 0.01",
			},
			{
				Description: "Check the campaign service",
				Command:     "maestro status",
			},
		},
	}
}
