// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
)

type cancelParams struct {
	CampaignConnection
}

// cancelResult mirrors the service's cancel response.
type cancelResult struct {
	Campaign  string `cbor:"campaign"`
	Cancelled bool   `cbor:"cancelled"`
}

func cancelCommand() *cli.Command {
	var params cancelParams

	return &cli.Command{
		Name:    "cancel",
		Summary: "Cancel a running campaign",
		Description: `Request cancellation of a running campaign.

The run stops at the next stage boundary (an in-flight provider call
is interrupted), the campaign transitions to cancelled, and watchers
receive the terminal event. Already-finished campaigns are left
untouched.`,
		Usage: "maestro campaign cancel ID [flags]",
		Examples: []cli.Example{
			{
				Description: "Cancel a campaign mid-run",
				Command:     "maestro campaign cancel camp_1a2b3c4d5e6f",
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

			ctx, cancel := callContext(ctx)
			defer cancel()

			var result cancelResult
			if err := client.Call(ctx, "cancel", map[string]any{"campaign": args[0]}, &result); err != nil {
				return err
			}

			if result.Cancelled {
				fmt.Printf("campaign %s cancellation requested\n", result.Campaign)
			} else {
				fmt.Printf("campaign %s is not running; nothing to cancel\n", result.Campaign)
			}
			return nil
		},
	}
}
