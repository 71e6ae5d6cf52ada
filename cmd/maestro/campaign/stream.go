// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/maestro-foundation/maestro/cmd/maestro/cli"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
	"github.com/maestro-foundation/maestro/lib/service"
)

// streamFrame mirrors the frames the campaign service writes on
// create and watch streams. Heartbeat frames keep the connection warm
// between agent messages and carry no payload.
type streamFrame struct {
	Type    string          `cbor:"type"`
	Event   *campaign.Event `cbor:"event,omitempty"`
	Message string          `cbor:"message,omitempty"`
}

// followStream renders stream frames until a terminal event arrives
// or the service closes the stream. Returns the terminal event when
// one arrived; a nil event with a nil error means the stream ended
// cleanly without one (a watch replay of a mid-run snapshot).
func followStream(ctx context.Context, stream *service.Stream, printer *eventPrinter) (*campaign.Event, error) {
	for {
		var frame streamFrame
		if err := stream.Next(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, cli.Transient("event stream interrupted: %v", err)
		}

		switch frame.Type {
		case "heartbeat":
			// Liveness only.

		case "overflow":
			printer.printNotice("event stream overflowed; dropped events are in the stored transcript")
			return nil, cli.Transient("event stream overflowed").
				WithHint("Replay the full history with 'maestro campaign watch ID' " +
					"or fetch the aggregate with 'maestro campaign get ID'.")

		case "error":
			return nil, streamError(frame.Message)

		case "event":
			if frame.Event == nil {
				continue
			}
			printer.printEvent(frame.Event)
			switch frame.Event.Type {
			case campaign.EventCompleted, campaign.EventError:
				return frame.Event, nil
			}
		}
	}
}

// streamError maps a service stream error message onto a CLI error
// category. Stream frames carry text only, so the mapping matches the
// service's message conventions.
func streamError(message string) error {
	switch {
	case strings.Contains(message, "not found"):
		return cli.NotFound("%s", message)
	case strings.HasPrefix(message, "invalid request"), strings.Contains(message, "campaign request:"):
		return cli.Validation("%s", message)
	default:
		return cli.Internal("%s", message)
	}
}

// exitForOutcome converts a terminal event into the command's exit
// status: nil when the run completed, a bare non-zero exit otherwise.
// The event has already been rendered, so no further output is
// wanted; callers rely on the exit code to distinguish outcomes in
// scripts.
func exitForOutcome(terminal *campaign.Event) error {
	if terminal == nil {
		return nil
	}
	switch {
	case terminal.Type == campaign.EventError:
		return &cli.ExitError{Code: 1}
	case terminal.Status != campaign.StatusCompleted:
		return &cli.ExitError{Code: 1}
	}
	return nil
}
