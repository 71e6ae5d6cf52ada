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
)

type listParams struct {
	CampaignConnection
	cli.JSONOutput
	Status string `json:"status" flag:"status,s" desc:"filter by status (created, strategy, segmentation, content, compliance, experiment, completed, rejected, failed, cancelled)"`
	Limit  int    `json:"limit"  flag:"limit,n"  desc:"maximum campaigns to list (0 = all)"`
}

// campaignRow is one row of the service's list response.
type campaignRow struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	CreatedBy       string `json:"created_by"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
	StagesCompleted int    `json:"stages_completed"`
	Variants        int    `json:"variants,omitempty"`
	ExperimentID    string `json:"experiment_id,omitempty"`
}

// listResult mirrors the service's list response.
type listResult struct {
	Campaigns []campaignRow `json:"campaigns"`
	Count     int           `json:"count"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List campaigns, newest first",
		Usage:   "maestro campaign list [flags]",
		Examples: []cli.Example{
			{
				Description: "List every stored campaign",
				Command:     "maestro campaign list",
			},
			{
				Description: "The ten most recent completed campaigns",
				Command:     "maestro campaign list --status completed --limit 10",
			},
			{
				Description: "Campaign IDs for scripting",
				Command:     "maestro campaign list --json | jq -r '.[].id'",
			},
		},
		Params: func() any { return &params },
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

			fields := map[string]any{}
			if params.Status != "" {
				fields["status"] = params.Status
			}
			if params.Limit > 0 {
				fields["limit"] = params.Limit
			}

			var result listResult
			if err := client.Call(ctx, "list", fields, &result); err != nil {
				return err
			}

			if done, err := params.EmitJSON(result.Campaigns); done {
				return err
			}

			if len(result.Campaigns) == 0 {
				logger.Info("no campaigns found")
				return nil
			}

			return writeCampaignTable(result.Campaigns)
		},
	}
}

// writeCampaignTable renders campaign summaries as an aligned table.
func writeCampaignTable(rows []campaignRow) error {
	now := time.Now()
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSTAGES\tVARIANTS\tEXPERIMENT\tUPDATED")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/5\t%d\t%s\t%s\n",
			row.ID,
			truncate(row.Name, 30),
			row.Status,
			row.StagesCompleted,
			row.Variants,
			row.ExperimentID,
			formatAge(row.UpdatedAt, now),
		)
	}
	return tw.Flush()
}
