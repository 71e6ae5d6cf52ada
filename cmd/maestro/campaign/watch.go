// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"context"
	"log/slog"
	"os"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
)

type watchParams struct {
	CampaignConnection
}

func watchCommand() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Stream a campaign's events to the terminal",
		Description: `Attach to a campaign's event stream.

For a running campaign the recorded history replays first and live
events follow until the run finishes. For a finished campaign the
full event sequence replays from the stored aggregate.

Exits 0 when the run completed, 1 when it ended rejected, cancelled,
or failed.`,
		Usage: "maestro campaign watch ID [flags]",
		Examples: []cli.Example{
			{
				Description: "Follow a running campaign",
				Command:     "maestro campaign watch camp_1a2b3c4d5e6f",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected a campaign ID argument, got %d arguments", len(args))
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			stream, err := client.Stream(ctx, "watch", map[string]any{"campaign": args[0]})
			if err != nil {
				return err
			}
			defer stream.Close()

			printer := newEventPrinter(os.Stdout)
			terminal, err := followStream(ctx, stream, printer)
			if err != nil {
				return err
			}
			return exitForOutcome(terminal)
		},
	}
}
