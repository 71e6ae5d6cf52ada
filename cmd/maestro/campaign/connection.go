// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"context"
	"time"

	"github.com/spf13/pflag"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
)

// campaignConnectionConfig is the ServiceConnectionConfig for the
// campaign service role. Shared between AddFlags (for zero-value
// params struct construction) and any explicit callers.
var campaignConnectionConfig = cli.ServiceConnectionConfig{
	Role:          "campaign",
	SocketEnvVar:  "MAESTRO_CAMPAIGN_SOCKET",
	DefaultSocket: "/run/maestro/campaign.sock",
}

// CampaignConnection manages connection parameters for commands that
// talk to the campaign service. Embeds [cli.ServiceConnection] for
// shared flag registration and socket checks. Exported because the
// experiment command group talks to the same service and embeds this
// type in its params structs.
type CampaignConnection struct {
	cli.ServiceConnection
}

// AddFlags initializes the campaign service configuration and
// registers connection flags. Safe to call on a zero-value
// CampaignConnection — the embedded ServiceConnection is configured
// before flag registration.
func (c *CampaignConnection) AddFlags(flagSet *pflag.FlagSet) {
	c.ServiceConnection = cli.NewServiceConnection(campaignConnectionConfig)
	c.ServiceConnection.AddFlags(flagSet)
}

// callContext returns a context with a reasonable timeout for
// one-shot service calls derived from the provided parent. Streaming
// commands (create, watch) use the parent context directly: a run
// legitimately takes minutes.
func callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}
