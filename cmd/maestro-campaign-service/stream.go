// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/maestro-foundation/maestro/lib/codec"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// --- Stream wire protocol ---

// streamFrame is a single CBOR value written on a create or watch
// stream. The Type field discriminates frame semantics:
//
//   - "event": a campaign lifecycle or transcript event (Event
//     populated). The event's own type field says whether it is the
//     started marker, an agent message, or the terminal outcome.
//   - "heartbeat": connection liveness probe (no payload). The client
//     should consider the connection dead if no frame of any type
//     arrives within 2x heartbeatInterval.
//   - "overflow": the subscriber fell too far behind and events were
//     dropped; the stream closes after this frame. A watch client can
//     reconnect to replay the full history.
//   - "error": terminal error, connection will close (Message
//     populated).
type streamFrame struct {
	Type    string          `cbor:"type"`
	Event   *campaign.Event `cbor:"event,omitempty"`
	Message string          `cbor:"message,omitempty"`
}

// heartbeatInterval is the time between heartbeat frames on an idle
// create or watch stream. Stage work (LLM calls) routinely takes
// longer than intermediary idle timeouts, so the stream stays warm
// between agent messages.
const heartbeatInterval = 30 * time.Second

// --- Stream handlers ---

// handleCreate is the stream handler for the "create" action. It
// validates and starts the campaign run, then forwards every event the
// run publishes until the terminal event closes the bus. The run is
// not tied to this connection: if the creator disconnects, the run
// continues and "watch" can reattach.
func (cs *CampaignService) handleCreate(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	var request campaign.CreateRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		encoder.Encode(streamFrame{Type: "error", Message: "invalid request: " + err.Error()})
		return
	}

	campaignID, bus, err := cs.pipeline.Start(ctx, request)
	if err != nil {
		encoder.Encode(streamFrame{Type: "error", Message: err.Error()})
		return
	}

	cs.logger.Info("create stream started", "campaign", campaignID, "name", request.Name)
	defer cs.logger.Info("create stream ended", "campaign", campaignID)

	subscription := bus.Subscribe()
	defer bus.Unsubscribe(subscription)
	cs.forwardEvents(ctx, encoder, subscription, campaignID)
}

// handleWatch is the stream handler for the "watch" action. For a
// running campaign it attaches to the live bus: recorded history
// replays first, then live events follow until the terminal event. For
// a finished campaign it replays the event sequence reconstructed from
// the persisted aggregate and ends the stream.
func (cs *CampaignService) handleWatch(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	var request campaignRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		encoder.Encode(streamFrame{Type: "error", Message: "invalid request: " + err.Error()})
		return
	}
	if request.Campaign == "" {
		encoder.Encode(streamFrame{Type: "error", Message: "missing required field: campaign"})
		return
	}

	if bus, ok := cs.pipeline.LiveBus(request.Campaign); ok {
		cs.logger.Info("watch stream started", "campaign", request.Campaign, "live", true)
		defer cs.logger.Info("watch stream ended", "campaign", request.Campaign)

		subscription := bus.Subscribe()
		defer bus.Unsubscribe(subscription)
		cs.forwardEvents(ctx, encoder, subscription, request.Campaign)
		return
	}

	aggregate, err := cs.store.Get(ctx, request.Campaign)
	if errors.Is(err, ErrNotFound) {
		encoder.Encode(streamFrame{Type: "error", Message: "campaign " + request.Campaign + " not found"})
		return
	}
	if err != nil {
		encoder.Encode(streamFrame{Type: "error", Message: err.Error()})
		return
	}

	cs.logger.Info("watch stream started", "campaign", request.Campaign, "live", false)
	defer cs.logger.Info("watch stream ended", "campaign", request.Campaign)

	for _, event := range replayEvents(aggregate) {
		if err := encoder.Encode(streamFrame{Type: "event", Event: &event}); err != nil {
			cs.logger.Debug("watch stream write error",
				"campaign", request.Campaign, "error", err)
			return
		}
	}
}

// forwardEvents writes bus events to the connection until the bus
// closes (terminal event delivered), the subscriber overflows, the
// context is cancelled (server shutdown), or the connection fails.
func (cs *CampaignService) forwardEvents(ctx context.Context, encoder *codec.Encoder, subscription *Subscription, campaignID string) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-subscription.Events():
			if !ok {
				// Channel closed: either the run reached its terminal
				// event and the bus shut down cleanly, or this
				// subscriber overflowed and was disconnected.
				if subscription.Overflowed() {
					cs.logger.Warn("event stream overflowed",
						"campaign", campaignID)
					encoder.Encode(streamFrame{Type: "overflow"})
				}
				return
			}
			if err := encoder.Encode(streamFrame{Type: "event", Event: &event}); err != nil {
				cs.logger.Debug("event stream write error",
					"campaign", campaignID, "error", err)
				return
			}

		case <-heartbeat.C:
			if err := encoder.Encode(streamFrame{Type: "heartbeat"}); err != nil {
				cs.logger.Debug("event stream heartbeat error",
					"campaign", campaignID, "error", err)
				return
			}
		}
	}
}

// replayEvents reconstructs the event sequence a live watcher would
// have seen from the persisted aggregate: the started marker, one
// agent_message per transcript entry, and the terminal event. A
// non-terminal aggregate with no live bus (a run interrupted by a
// service restart) replays without a terminal event.
func replayEvents(c *campaign.Campaign) []campaign.Event {
	events := make([]campaign.Event, 0, len(c.Messages)+2)
	events = append(events, campaign.NewStartedEvent(c))
	for _, message := range c.Messages {
		events = append(events, campaign.NewMessageEvent(c.ID, message))
	}
	switch c.Status {
	case campaign.StatusCompleted, campaign.StatusRejected, campaign.StatusCancelled:
		events = append(events, campaign.NewCompletedEvent(c, runSummary(c)))
	case campaign.StatusFailed:
		if stage, ok := c.NextStage(); ok {
			event := campaign.NewErrorEvent(c.ID, stage, "campaign run failed", c.UpdatedAt)
			event.Status = campaign.StatusFailed
			events = append(events, event)
		}
	}
	return events
}
