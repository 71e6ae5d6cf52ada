// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/lib/service"
)

type createParams struct {
	CampaignConnection
	Name      string   `json:"name"       flag:"name,n"      desc:"campaign name (3-100 chars: letters, digits, spaces, - and _)"`
	Objective string   `json:"objective"  flag:"objective,o" desc:"what the campaign should achieve, in plain language"`
	CreatedBy string   `json:"created_by" flag:"created-by"  desc:"requesting principal recorded on the campaign"`
	Mode      string   `json:"mode"       flag:"mode,m"      desc:"creative mode (precision, brand_voice, adaptive_creative, high_variance, divergent_ideation)"`
	Channels  []string `json:"channels"   flag:"channels,c"  desc:"delivery channels (email, sms, push); repeat or comma-separate"`
	Variants  int      `json:"variants"   flag:"variants"    desc:"number of content variants to generate (1-5)"`
	Wait      bool     `json:"wait"       flag:"wait"        desc:"stream events until the run finishes (--wait=false prints the campaign ID and detaches)" default:"true"`
}

func createCommand() *cli.Command {
	var params createParams

	return &cli.Command{
		Name:    "create",
		Summary: "Create a campaign and run the agent pipeline",
		Description: `Create a campaign run and stream its events to the terminal.

The service validates the request, persists the new campaign, and
drives the five agent stages. Each agent message streams back as it
is produced. The run is not tied to this invocation: disconnecting
(or --wait=false) leaves the run going, and 'maestro campaign watch'
reattaches.

Exits 0 when the run completes, 1 when it ends rejected, cancelled,
or failed.`,
		Usage: "maestro campaign create --name NAME --objective TEXT [flags]",
		Examples: []cli.Example{
			{
				Description: "Run a campaign with the default settings",
				Command:     "maestro campaign create --name 'Spring Sale' --objective 'Re-engage customers inactive for 60 days'",
			},
			{
				Description: "Two bold variants for email and SMS",
				Command:     "maestro campaign create --name 'Flash Promo' --objective 'Drive weekend signups' --mode high_variance --channels email,sms --variants 2",
			},
			{
				Description: "Start a run and detach, capturing the campaign ID",
				Command:     "ID=$(maestro campaign create --name 'Q4 Launch' --objective 'Announce the new tier' --wait=false)",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("expected no positional arguments, got %d", len(args))
			}
			if params.Name == "" {
				return cli.Validation("--name is required")
			}
			if params.Objective == "" {
				return cli.Validation("--objective is required")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			fields := map[string]any{
				"name":      params.Name,
				"objective": params.Objective,
			}
			if params.CreatedBy != "" {
				fields["created_by"] = params.CreatedBy
			}
			if params.Mode != "" {
				fields["creative_mode"] = params.Mode
			}
			if len(params.Channels) > 0 {
				fields["channels"] = params.Channels
			}
			if params.Variants != 0 {
				fields["variant_count"] = params.Variants
			}

			stream, err := client.Stream(ctx, "create", fields)
			if err != nil {
				return err
			}
			defer stream.Close()

			if !params.Wait {
				return printCampaignID(stream)
			}

			printer := newEventPrinter(os.Stdout)
			terminal, err := followStream(ctx, stream, printer)
			if err != nil {
				return err
			}
			return exitForOutcome(terminal)
		},
	}
}

// printCampaignID reads frames until the started event and prints the
// new campaign's ID as the only stdout output, so shell substitution
// captures it cleanly. An error frame before the started event is the
// synchronous rejection path.
func printCampaignID(stream *service.Stream) error {
	for {
		var frame streamFrame
		if err := stream.Next(&frame); err != nil {
			return cli.Transient("event stream interrupted: %v", err)
		}
		switch frame.Type {
		case "error":
			return streamError(frame.Message)
		case "event":
			if frame.Event != nil {
				fmt.Println(frame.Event.CampaignID)
				return nil
			}
		}
	}
}
