// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	campaigncmd "github.com/maestro-foundation/maestro/cmd/maestro/campaign"
	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

type analyzeParams struct {
	campaigncmd.CampaignConnection
	cli.JSONOutput
	Confidence float64 `json:"confidence" flag:"confidence" desc:"confidence level override in (0, 1); 0 uses the experiment's configured level"`
}

func analyzeCommand() *cli.Command {
	var params analyzeParams

	return &cli.Command{
		Name:    "analyze",
		Summary: "Run the significance analysis for an experiment",
		Description: `Compute the two-proportion z-test of every treatment arm against
the control from the recorded metrics. Read-only: the stored result
is only updated by 'maestro experiment record'.`,
		Usage: "maestro experiment analyze EXPERIMENT_ID [flags]",
		Examples: []cli.Example{
			{
				Description: "Analyze at the experiment's configured confidence level",
				Command:     "maestro experiment analyze exp_9f8e7d6c5b4a",
			},
			{
				Description: "Re-analyze at 99% confidence",
				Command:     "maestro experiment analyze exp_9f8e7d6c5b4a --confidence 0.99",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected an experiment ID argument, got %d arguments", len(args))
			}
			if params.Confidence != 0 && (params.Confidence <= 0 || params.Confidence >= 1) {
				return cli.Validation("--confidence must be in (0, 1), got %v", params.Confidence)
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext(ctx)
			defer cancel()

			fields := map[string]any{"experiment": args[0]}
			if params.Confidence != 0 {
				fields["confidence"] = params.Confidence
			}

			var result campaign.SignificanceResult
			if err := client.Call(ctx, "analyze", fields, &result); err != nil {
				return err
			}

			if done, err := params.EmitJSON(&result); done {
				return err
			}

			return writeAnalysis(args[0], &result)
		},
	}
}

// writeAnalysis renders a significance result: the headline verdict,
// then one comparison row per treatment arm.
func writeAnalysis(experimentID string, result *campaign.SignificanceResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Experiment:\t%s\n", experimentID)
	fmt.Fprintf(tw, "Control:\t%s\n", result.ControlLabel)
	fmt.Fprintf(tw, "Confidence:\t%.0f%%\n", result.ConfidenceLevel*100)
	fmt.Fprintf(tw, "Z-score:\t%.4f\n", result.ZScore)
	fmt.Fprintf(tw, "P-value:\t%.4f\n", result.PValue)
	fmt.Fprintf(tw, "Significant:\t%s\n", yesNo(result.IsSignificant))
	if result.WinningVariant != "" {
		fmt.Fprintf(tw, "Winner:\t%s\n", result.WinningVariant)
	}
	if result.AnalyzedAt != 0 {
		fmt.Fprintf(tw, "Analyzed:\t%s\n", formatTime(result.AnalyzedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%s\n", result.Recommendation)

	if len(result.Comparisons) == 0 {
		return nil
	}
	fmt.Println()
	tw = tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tCONTROL\tTREATMENT\tUPLIFT\tZ\tP\tSIGNIFICANT\tCI (PTS)")
	for _, comparison := range result.Comparisons {
		fmt.Fprintf(tw, "%s\t%.2f%%\t%.2f%%\t%+.1f%%\t%.4f\t%.4f\t%s\t[%+.2f, %+.2f]\n",
			comparison.VariantLabel,
			comparison.ControlRate*100,
			comparison.TreatmentRate*100,
			comparison.UpliftPercent,
			comparison.ZScore,
			comparison.PValue,
			yesNo(comparison.IsSignificant),
			comparison.ConfidenceLow*100,
			comparison.ConfidenceHigh*100,
		)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(unixNano int64) string {
	return time.Unix(0, unixNano).Local().Format("2006-01-02 15:04:05")
}
