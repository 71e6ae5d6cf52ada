// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"errors"
	"fmt"
)

// EventType discriminates the stream event frames a campaign run
// publishes to live watchers.
type EventType string

const (
	// EventStarted is published once, immediately after the
	// aggregate is created and persisted.
	EventStarted EventType = "started"

	// EventAgentMessage is published once per stage message, as
	// produced. A stage that yields N messages produces N of these,
	// in order.
	EventAgentMessage EventType = "agent_message"

	// EventCompleted is published when the run reaches completed,
	// rejected, or cancelled. The Status field carries the outcome.
	EventCompleted EventType = "completed"

	// EventError is published when the run fails: a stage exhausted
	// its retry budget or persistence gave out. Carries the failing
	// stage and cause. The partial aggregate remains queryable.
	EventError EventType = "error"
)

// Event is one frame in a campaign run's stream. Type determines
// which type-specific fields are set:
//
//   - "started": CampaignName.
//   - "agent_message": MessageID, Stage, Role, Content.
//   - "completed": Status, TotalMessages, AgentsInvolved, Summary.
//   - "error": Stage, Message.
//
// CampaignID and Timestamp are set on every frame. Events for one run
// reach each subscriber in publication order.
type Event struct {
	// Type discriminates the frame.
	Type EventType `json:"type"`

	// CampaignID is the run this event belongs to.
	CampaignID string `json:"campaign_id"`

	// Timestamp is when the event was produced, as Unix nanoseconds.
	Timestamp int64 `json:"timestamp"`

	// CampaignName is the campaign's name (type "started").
	CampaignName string `json:"campaign_name,omitempty"`

	// MessageID, Stage, Role, and Content mirror the StageMessage
	// this frame streams (type "agent_message"). Stage is also set
	// on "error" frames to name the failing stage.
	MessageID string `json:"message_id,omitempty"`
	Stage     Stage  `json:"stage,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`

	// Status is the terminal outcome (type "completed"): completed,
	// rejected, or cancelled.
	Status Status `json:"status,omitempty"`

	// TotalMessages is the transcript length at completion (type
	// "completed").
	TotalMessages int `json:"total_messages,omitempty"`

	// AgentsInvolved lists the distinct agent roles that spoke, in
	// first-appearance order (type "completed").
	AgentsInvolved []string `json:"agents_involved,omitempty"`

	// Summary is the one-paragraph run summary (type "completed").
	Summary string `json:"summary,omitempty"`

	// Message is the failure cause (type "error").
	Message string `json:"message,omitempty"`
}

// NewStartedEvent builds the started frame for a freshly created
// aggregate.
func NewStartedEvent(c *Campaign) Event {
	return Event{
		Type:         EventStarted,
		CampaignID:   c.ID,
		Timestamp:    c.CreatedAt,
		CampaignName: c.Name,
	}
}

// NewMessageEvent builds the agent_message frame for one stage
// message.
func NewMessageEvent(campaignID string, message StageMessage) Event {
	return Event{
		Type:       EventAgentMessage,
		CampaignID: campaignID,
		Timestamp:  message.Timestamp,
		MessageID:  message.ID,
		Stage:      message.Stage,
		Role:       message.Role,
		Content:    message.Content,
	}
}

// NewCompletedEvent builds the completed frame for a terminal
// aggregate. The aggregate's status supplies the outcome.
func NewCompletedEvent(c *Campaign, summary string) Event {
	return Event{
		Type:           EventCompleted,
		CampaignID:     c.ID,
		Timestamp:      c.UpdatedAt,
		Status:         c.Status,
		TotalMessages:  len(c.Messages),
		AgentsInvolved: c.AgentsInvolved(),
		Summary:        summary,
	}
}

// NewErrorEvent builds the error frame for a failed run.
func NewErrorEvent(campaignID string, stage Stage, message string, at int64) Event {
	return Event{
		Type:       EventError,
		CampaignID: campaignID,
		Timestamp:  at,
		Stage:      stage,
		Message:    message,
	}
}

// Validate checks that the event has a valid type and the
// type-specific fields required for its type.
func (e *Event) Validate() error {
	if e.CampaignID == "" {
		return errors.New("event: campaign_id is required")
	}
	if e.Timestamp <= 0 {
		return errors.New("event: timestamp is required")
	}
	switch e.Type {
	case EventStarted:
		if e.CampaignName == "" {
			return errors.New("event: campaign_name is required for started events")
		}
	case EventAgentMessage:
		if !IsMessageID(e.MessageID) {
			return fmt.Errorf("event: invalid message_id %q for agent_message event", e.MessageID)
		}
		if !IsValidStage(e.Stage) {
			return fmt.Errorf("event: unknown stage %q for agent_message event", e.Stage)
		}
		if e.Role == "" {
			return errors.New("event: role is required for agent_message events")
		}
		if e.Content == "" {
			return errors.New("event: content is required for agent_message events")
		}
	case EventCompleted:
		switch e.Status {
		case StatusCompleted, StatusRejected, StatusCancelled:
			// Valid outcomes.
		default:
			return fmt.Errorf("event: status %q is not a completed outcome", e.Status)
		}
	case EventError:
		if !IsValidStage(e.Stage) {
			return fmt.Errorf("event: unknown stage %q for error event", e.Stage)
		}
		if e.Message == "" {
			return errors.New("event: message is required for error events")
		}
	case "":
		return errors.New("event: type is required")
	default:
		return fmt.Errorf("event: unknown type %q", e.Type)
	}
	return nil
}
