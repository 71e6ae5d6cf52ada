// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/lib/stats"
)

type planParams struct {
	cli.JSONOutput
	Baseline   float64 `json:"baseline"   flag:"baseline"   desc:"baseline conversion rate in (0, 1), e.g. 0.08 for 8%"`
	Delta      float64 `json:"delta"      flag:"delta"      desc:"minimum detectable absolute lift in (0, 1), e.g. 0.01 for one point"`
	Confidence float64 `json:"confidence" flag:"confidence" desc:"confidence level" default:"0.95"`
	Power      float64 `json:"power"      flag:"power"      desc:"statistical power" default:"0.8"`
}

// planResult is the JSON output shape for a sample-size plan.
type planResult struct {
	Baseline         float64 `json:"baseline"`
	Delta            float64 `json:"delta"`
	Confidence       float64 `json:"confidence"`
	Power            float64 `json:"power"`
	SampleSizePerArm int     `json:"sample_size_per_arm"`
}

func planCommand() *cli.Command {
	var params planParams

	return &cli.Command{
		Name:    "plan",
		Summary: "Compute the minimum sample size for an experiment",
		Description: `Compute how many impressions each arm needs before the experiment
can detect the given absolute lift. Pure computation; the campaign
service is not contacted.`,
		Usage: "maestro experiment plan --baseline RATE --delta LIFT [flags]",
		Examples: []cli.Example{
			{
				Description: "Detect a one-point lift over an 8% baseline",
				Command:     "maestro experiment plan --baseline 0.08 --delta 0.01",
			},
			{
				Description: "A stricter test: 99% confidence, 90% power",
				Command:     "maestro experiment plan --baseline 0.08 --delta 0.01 --confidence 0.99 --power 0.9",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("expected no positional arguments, got %d", len(args))
			}
			if params.Baseline == 0 {
				return cli.Validation("--baseline is required")
			}
			if params.Delta == 0 {
				return cli.Validation("--delta is required")
			}

			size, err := stats.MinimumSampleSize(params.Baseline, params.Delta, params.Confidence, params.Power)
			if err != nil {
				return cli.Validation("%v", err)
			}

			if done, err := params.EmitJSON(planResult{
				Baseline:         params.Baseline,
				Delta:            params.Delta,
				Confidence:       params.Confidence,
				Power:            params.Power,
				SampleSizePerArm: size,
			}); done {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Baseline rate:\t%.2f%%\n", params.Baseline*100)
			fmt.Fprintf(tw, "Detectable lift:\t%.2f points\n", params.Delta*100)
			fmt.Fprintf(tw, "Confidence:\t%.0f%%\n", params.Confidence*100)
			fmt.Fprintf(tw, "Power:\t%.0f%%\n", params.Power*100)
			fmt.Fprintf(tw, "Sample size:\t%d per arm\n", size)
			return tw.Flush()
		},
	}
}
