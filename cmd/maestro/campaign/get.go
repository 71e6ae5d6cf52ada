// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

type getParams struct {
	CampaignConnection
	cli.JSONOutput
}

func getCommand() *cli.Command {
	var params getParams

	return &cli.Command{
		Name:    "get",
		Summary: "Show a campaign's stored state",
		Description: `Fetch a campaign aggregate and show a digest: lifecycle state,
generated content variants, the compliance verdict, and the
experiment setup. --json emits the full aggregate including the
agent transcript; 'maestro campaign watch' replays the transcript
as events.`,
		Usage: "maestro campaign get ID [flags]",
		Examples: []cli.Example{
			{
				Description: "Inspect a campaign",
				Command:     "maestro campaign get camp_1a2b3c4d5e6f",
			},
			{
				Description: "Full aggregate as JSON",
				Command:     "maestro campaign get camp_1a2b3c4d5e6f --json",
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

			var aggregate campaign.Campaign
			if err := client.Call(ctx, "get", map[string]any{"campaign": args[0]}, &aggregate); err != nil {
				return err
			}

			if done, err := params.EmitJSON(&aggregate); done {
				return err
			}

			return writeCampaignDetail(&aggregate)
		},
	}
}

// writeCampaignDetail renders the aggregate digest.
func writeCampaignDetail(aggregate *campaign.Campaign) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Campaign:\t%s\n", aggregate.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", aggregate.Name)
	fmt.Fprintf(tw, "Objective:\t%s\n", aggregate.Objective)
	fmt.Fprintf(tw, "Status:\t%s\n", aggregate.Status)
	fmt.Fprintf(tw, "Mode:\t%s\n", aggregate.CreativeMode)
	if len(aggregate.Channels) > 0 {
		fmt.Fprintf(tw, "Channels:\t%s\n", joinChannels(aggregate.Channels))
	}
	fmt.Fprintf(tw, "Created by:\t%s\n", aggregate.CreatedBy)
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(aggregate.CreatedAt))
	fmt.Fprintf(tw, "Updated:\t%s\n", formatTime(aggregate.UpdatedAt))
	fmt.Fprintf(tw, "Stages:\t%s\n", joinStages(aggregate.StagesCompleted))
	if aggregate.Segment != nil {
		fmt.Fprintf(tw, "Segment:\t%s (%d recipients)\n", aggregate.Segment.Name, aggregate.Segment.Size)
	}
	if len(aggregate.Messages) > 0 {
		fmt.Fprintf(tw, "Messages:\t%d (replay with 'maestro campaign watch %s')\n",
			len(aggregate.Messages), aggregate.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for i := range aggregate.Variants {
		writeVariant(&aggregate.Variants[i])
	}

	if aggregate.Compliance != nil {
		writeCompliance(aggregate.Compliance)
	}

	if aggregate.Experiment != nil {
		if err := writeExperiment(aggregate.Experiment); err != nil {
			return err
		}
	}
	return nil
}

func writeVariant(variant *campaign.ContentVariant) {
	fmt.Printf("\n--- Variant %s (%s) ---\n", variant.Label, variant.Channel)
	if variant.Subject != "" {
		fmt.Printf("Subject: %s\n", variant.Subject)
	}
	fmt.Println(variant.Text)
}

func writeCompliance(report *campaign.ComplianceReport) {
	if report.Passed {
		fmt.Printf("\nCompliance: passed (%s)\n", formatTime(report.CheckedAt))
		return
	}
	fmt.Printf("\nCompliance: REJECTED, %d violations (%s)\n",
		len(report.Violations), formatTime(report.CheckedAt))
	for i := range report.Violations {
		fmt.Printf("  - %s\n", report.Violations[i].String())
	}
}

func writeExperiment(experiment *campaign.Experiment) error {
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Experiment:\t%s\n", experiment.ID)
	fmt.Fprintf(tw, "Feature flag:\t%s\n", experiment.FeatureFlagID)
	fmt.Fprintf(tw, "Traffic:\t%s\n", formatAllocations(experiment.Allocations))
	fmt.Fprintf(tw, "Sample size:\t%d per arm at %.0f%% confidence\n",
		experiment.MinimumSampleSize, experiment.ConfidenceLevel*100)
	if result := experiment.Result; result != nil {
		if result.WinningVariant != "" {
			fmt.Fprintf(tw, "Result:\t%s wins (z=%.4f, p=%.4f)\n",
				result.WinningVariant, result.ZScore, result.PValue)
		} else {
			fmt.Fprintf(tw, "Result:\tno significant winner (z=%.4f, p=%.4f)\n",
				result.ZScore, result.PValue)
		}
		fmt.Fprintf(tw, "\t%s\n", result.Recommendation)
	}
	return tw.Flush()
}

// formatAllocations renders the traffic split with each arm's
// percentile window.
func formatAllocations(allocations []campaign.Allocation) string {
	parts := make([]string, len(allocations))
	for i, allocation := range allocations {
		parts[i] = fmt.Sprintf("%s %d%% [%d-%d)",
			allocation.VariantLabel, allocation.Percent,
			allocation.FromPercentile, allocation.ToPercentile)
	}
	return strings.Join(parts, ", ")
}

func joinChannels(channels []campaign.Channel) string {
	names := make([]string, len(channels))
	for i, channel := range channels {
		names[i] = string(channel)
	}
	return strings.Join(names, ", ")
}

func joinStages(stages []campaign.Stage) string {
	if len(stages) == 0 {
		return "none completed"
	}
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = string(stage)
	}
	return strings.Join(names, ", ")
}
