// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"context"
	"fmt"
	"log/slog"

	campaigncmd "github.com/maestro-foundation/maestro/cmd/maestro/campaign"
	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

type recordParams struct {
	campaigncmd.CampaignConnection
	cli.JSONOutput
	Variant     string `json:"variant"     flag:"variant,v"   desc:"arm label to record (control or a variant label like A)"`
	Impressions int64  `json:"impressions" flag:"impressions" desc:"observed impressions for the arm"`
	Clicks      int64  `json:"clicks"      flag:"clicks"      desc:"observed clicks for the arm"`
	Conversions int64  `json:"conversions" flag:"conversions" desc:"observed conversions for the arm"`
}

// recordedArm is one arm's counts on the wire.
type recordedArm struct {
	Label       string `json:"label"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks,omitempty"`
	Conversions int64  `json:"conversions"`
}

// recordResult mirrors the service's record response.
type recordResult struct {
	Experiment string                       `json:"experiment_id"`
	Recorded   int                          `json:"recorded"`
	Result     *campaign.SignificanceResult `json:"result,omitempty"`
}

func recordCommand() *cli.Command {
	var params recordParams

	return &cli.Command{
		Name:    "record",
		Summary: "Record observed metrics for an experiment arm",
		Description: `Record an arm's observed counts. Recording replaces the arm's
previous counts (send cumulative totals, not deltas), recomputes the
significance analysis over everything stored so far, and persists
both onto the owning campaign.

Arms report independently: record the control from one system and
each variant from another as their numbers arrive. The analysis
becomes computable once the control and at least one treatment arm
have counts.`,
		Usage: "maestro experiment record EXPERIMENT_ID --variant LABEL --impressions N --conversions N [flags]",
		Examples: []cli.Example{
			{
				Description: "Record the control arm",
				Command:     "maestro experiment record exp_9f8e7d6c5b4a --variant control --impressions 10000 --conversions 805",
			},
			{
				Description: "Record a treatment arm with click counts",
				Command:     "maestro experiment record exp_9f8e7d6c5b4a --variant B --impressions 10000 --clicks 1450 --conversions 895",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected an experiment ID argument, got %d arguments", len(args))
			}
			if params.Variant == "" {
				return cli.Validation("--variant is required")
			}
			if params.Impressions <= 0 {
				return cli.Validation("--impressions must be positive")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext(ctx)
			defer cancel()

			fields := map[string]any{
				"experiment_id": args[0],
				"variants": []recordedArm{{
					Label:       params.Variant,
					Impressions: params.Impressions,
					Clicks:      params.Clicks,
					Conversions: params.Conversions,
				}},
			}

			var result recordResult
			if err := client.Call(ctx, "record", fields, &result); err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}

			fmt.Printf("recorded %s: %d impressions, %d conversions\n",
				params.Variant, params.Impressions, params.Conversions)
			if result.Result == nil {
				fmt.Println("analysis pending: waiting for control and treatment counts")
				return nil
			}
			if result.Result.WinningVariant != "" {
				fmt.Printf("analysis: %s wins (z=%.4f, p=%.4f)\n",
					result.Result.WinningVariant, result.Result.ZScore, result.Result.PValue)
			} else {
				fmt.Printf("analysis: no significant winner (z=%.4f, p=%.4f)\n",
					result.Result.ZScore, result.Result.PValue)
			}
			fmt.Println(result.Result.Recommendation)
			return nil
		},
	}
}
