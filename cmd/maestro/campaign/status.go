// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

type statusParams struct {
	CampaignConnection
	cli.JSONOutput
}

// statusResult mirrors the service's status response.
type statusResult struct {
	UptimeSeconds float64          `json:"uptime_seconds" cbor:"uptime_seconds"`
	ActiveRuns    int              `json:"active_runs"    cbor:"active_runs"`
	Campaigns     map[string]int64 `json:"campaigns"      cbor:"campaigns,omitempty"`
}

// statusOrder fixes the display order of per-status campaign counts:
// lifecycle order, active stages before terminal outcomes.
var statusOrder = []campaign.Status{
	campaign.StatusCreated,
	campaign.StatusStrategy,
	campaign.StatusSegmentation,
	campaign.StatusContent,
	campaign.StatusCompliance,
	campaign.StatusExperiment,
	campaign.StatusCompleted,
	campaign.StatusRejected,
	campaign.StatusFailed,
	campaign.StatusCancelled,
}

// StatusCommand returns the root-mounted "status" command. It lives in
// this package because it needs the campaign service connection.
func StatusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show campaign service status",
		Usage:   "maestro status [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("expected no positional arguments, got %d", len(args))
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext(ctx)
			defer cancel()

			var result statusResult
			if err := client.Call(ctx, "status", nil, &result); err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}

			uptime := time.Duration(result.UptimeSeconds * float64(time.Second)).Round(time.Second)

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Socket:\t%s\n", params.SocketPath)
			fmt.Fprintf(tw, "Uptime:\t%s\n", uptime)
			fmt.Fprintf(tw, "Active runs:\t%d\n", result.ActiveRuns)

			var total int64
			for _, count := range result.Campaigns {
				total += count
			}
			fmt.Fprintf(tw, "Campaigns:\t%d\n", total)
			for _, status := range statusOrder {
				if count, ok := result.Campaigns[string(status)]; ok {
					fmt.Fprintf(tw, "  %s:\t%d\n", status, count)
				}
			}
			return tw.Flush()
		},
	}
}
