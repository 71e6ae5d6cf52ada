// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package campaign implements the "maestro campaign" command group:
// creating campaign runs, following their event streams, and
// inspecting stored aggregates over the campaign service socket.
package campaign

import "github.com/maestro-foundation/maestro/cmd/maestro/cli"

// Command returns the "campaign" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "campaign",
		Summary: "Campaign orchestration commands",
		Description: `Create and manage marketing campaign runs.

A campaign run drives five agent stages in order (strategy,
segmentation, content, compliance, experiment) and streams each
agent's output live. Finished campaigns keep their full transcript
and can be fetched, listed, and re-watched at any time.`,
		Subcommands: []*cli.Command{
			createCommand(),
			getCommand(),
			listCommand(),
			watchCommand(),
			cancelCommand(),
		},
	}
}
