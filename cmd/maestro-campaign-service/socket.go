// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maestro-foundation/maestro/lib/clock"
	"github.com/maestro-foundation/maestro/lib/codec"
	"github.com/maestro-foundation/maestro/lib/config"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
	"github.com/maestro-foundation/maestro/lib/service"
)

// CampaignService owns the socket and HTTP surfaces. It delegates run
// orchestration to the Pipeline and durable reads to the Store; the
// handlers here only decode requests, route, and encode responses.
type CampaignService struct {
	store      *Store
	pipeline   *Pipeline
	experiment config.ExperimentConfig
	clock      clock.Clock
	logger     *slog.Logger
	startedAt  time.Time
}

// NewCampaignService creates the service around an opened store and a
// running pipeline. Panics on nil dependencies: the service cannot
// degrade without them.
func NewCampaignService(store *Store, pipeline *Pipeline, experiment config.ExperimentConfig, clk clock.Clock, logger *slog.Logger) *CampaignService {
	if store == nil {
		panic("CampaignService: store is required")
	}
	if pipeline == nil {
		panic("CampaignService: pipeline is required")
	}
	if clk == nil {
		panic("CampaignService: clock is required")
	}
	if logger == nil {
		panic("CampaignService: logger is required")
	}
	return &CampaignService{
		store:      store,
		pipeline:   pipeline,
		experiment: experiment,
		clock:      clk,
		logger:     logger,
		startedAt:  clk.Now(),
	}
}

// registerActions registers all socket API actions on the server.
// "create" and "watch" are streaming actions (the connection stays
// open and carries campaign events); everything else is one-shot.
func (cs *CampaignService) registerActions(server *service.SocketServer) {
	server.Handle("status", cs.handleStatus)
	server.Handle("get", cs.handleGet)
	server.Handle("list", cs.handleList)
	server.Handle("cancel", cs.handleCancel)
	server.Handle("analyze", cs.handleAnalyze)
	server.Handle("record", cs.handleRecord)

	server.HandleStream("create", cs.handleCreate)
	server.HandleStream("watch", cs.handleWatch)
}

// --- Request types ---
//
// Each action decodes its specific fields from the CBOR request. The
// "action" field is handled by the socket server framework and is not
// included here.

// campaignRequest is used by actions that take only a campaign ID.
type campaignRequest struct {
	Campaign string `cbor:"campaign"`
}

// listRequest is used by the "list" action for filtered queries.
type listRequest struct {
	Status string `cbor:"status,omitempty"`
	Limit  int    `cbor:"limit,omitempty"`
}

// experimentRequest is used by the "analyze" action. Confidence, when
// non-zero, overrides the experiment's stored confidence level for
// this analysis only; the stored level is untouched.
type experimentRequest struct {
	Experiment string  `cbor:"experiment"`
	Confidence float64 `cbor:"confidence,omitempty"`
}

// recordRequest is the request body for the "record" action and the
// HTTP results endpoint (which fills Experiment from the URL path).
// Arms absent from the request keep their previously recorded values.
// Decoded from both CBOR and JSON, so tagged with `json` per the codec
// package convention.
type recordRequest struct {
	Experiment string            `json:"experiment_id"`
	Variants   []recordedVariant `json:"variants"`
}

// recordedVariant is one arm's observed counts in a record request.
type recordedVariant struct {
	Label       string `json:"label"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks,omitempty"`
	Conversions int64  `json:"conversions"`
}

// --- Response types ---

// statusResponse is the response to the "status" action.
type statusResponse struct {
	// UptimeSeconds is how long the service has been running.
	UptimeSeconds float64 `cbor:"uptime_seconds"`

	// ActiveRuns is the number of campaigns currently executing the
	// stage pipeline.
	ActiveRuns int `cbor:"active_runs"`

	// Campaigns counts stored campaigns by lifecycle status. Statuses
	// with no campaigns are omitted.
	Campaigns map[string]int64 `cbor:"campaigns,omitempty"`
}

// campaignSummary is one row of the "list" response: enough for a
// table without shipping transcripts and variant bodies. Served over
// both CBOR (socket) and JSON (HTTP), so tagged with `json` per the
// codec package convention.
type campaignSummary struct {
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

// listResponse is the response to the "list" action and the HTTP
// campaign index.
type listResponse struct {
	Campaigns []campaignSummary `json:"campaigns"`
	Count     int               `json:"count"`
}

// cancelResponse reports the outcome of a "cancel" action. Cancelled
// is false when the campaign was not running (already terminal or
// unknown to the pipeline).
type cancelResponse struct {
	Campaign  string `cbor:"campaign"`
	Cancelled bool   `cbor:"cancelled"`
}

// --- Handlers ---

// handleStatus returns liveness and aggregate campaign counts.
func (cs *CampaignService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	uptime := cs.clock.Now().Sub(cs.startedAt)

	counts, err := cs.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting campaigns: %w", err)
	}
	byStatus := make(map[string]int64, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}

	return statusResponse{
		UptimeSeconds: uptime.Seconds(),
		ActiveRuns:    cs.pipeline.ActiveRuns(),
		Campaigns:     byStatus,
	}, nil
}

// handleGet returns the full campaign aggregate, transcript included.
func (cs *CampaignService) handleGet(ctx context.Context, raw []byte) (any, error) {
	var request campaignRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Campaign == "" {
		return nil, errors.New("missing required field: campaign")
	}

	aggregate, err := cs.store.Get(ctx, request.Campaign)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("campaign %s: %w", request.Campaign, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading campaign %s: %w", request.Campaign, err)
	}
	return aggregate, nil
}

// handleList returns campaign summaries, newest first, optionally
// filtered by status.
func (cs *CampaignService) handleList(ctx context.Context, raw []byte) (any, error) {
	var request listRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	statusFilter := campaign.Status(request.Status)
	if request.Status != "" && !campaign.IsValidStatus(statusFilter) {
		return nil, fmt.Errorf("unknown status %q", request.Status)
	}

	campaigns, err := cs.store.List(ctx, statusFilter, request.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing campaigns: %w", err)
	}

	summaries := make([]campaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		summaries = append(summaries, summarize(c))
	}
	return listResponse{Campaigns: summaries, Count: len(summaries)}, nil
}

// handleCancel requests cancellation of a running campaign. The
// response reports whether a run was actually interrupted; the
// aggregate transitions to cancelled asynchronously once the run
// goroutine observes the cancellation.
func (cs *CampaignService) handleCancel(ctx context.Context, raw []byte) (any, error) {
	var request campaignRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Campaign == "" {
		return nil, errors.New("missing required field: campaign")
	}

	// Distinguish "not running" from "never existed" so callers get a
	// hard error for typos instead of a quiet no-op.
	cancelled := cs.pipeline.Cancel(request.Campaign)
	if !cancelled {
		if _, err := cs.store.Get(ctx, request.Campaign); errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("campaign %s: %w", request.Campaign, ErrNotFound)
		} else if err != nil {
			return nil, fmt.Errorf("loading campaign %s: %w", request.Campaign, err)
		}
	}

	return cancelResponse{Campaign: request.Campaign, Cancelled: cancelled}, nil
}

// handleAnalyze runs the significance analysis for an experiment and
// returns the result. Read-only: results are persisted by "record".
func (cs *CampaignService) handleAnalyze(ctx context.Context, raw []byte) (any, error) {
	var request experimentRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Experiment == "" {
		return nil, errors.New("missing required field: experiment")
	}
	if request.Confidence != 0 && (request.Confidence <= 0 || request.Confidence >= 1) {
		return nil, fmt.Errorf("confidence %v outside (0, 1)", request.Confidence)
	}
	return cs.analyzeExperiment(ctx, request.Experiment, request.Confidence)
}

// handleRecord upserts observed metrics for an experiment's arms,
// recomputes the significance analysis, and persists both onto the
// owning campaign. Returns the updated analysis when one could be
// computed.
func (cs *CampaignService) handleRecord(ctx context.Context, raw []byte) (any, error) {
	var request recordRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Experiment == "" {
		return nil, errors.New("missing required field: experiment")
	}
	if len(request.Variants) == 0 {
		return nil, errors.New("missing required field: variants")
	}

	recordedAt := cs.clock.Now().UnixNano()
	metrics := make([]campaign.VariantMetrics, len(request.Variants))
	for i, v := range request.Variants {
		metrics[i] = campaign.VariantMetrics{
			VariantLabel: v.Label,
			Impressions:  v.Impressions,
			Clicks:       v.Clicks,
			Conversions:  v.Conversions,
			RecordedAt:   recordedAt,
		}
		if err := metrics[i].Validate(); err != nil {
			return nil, err
		}
	}

	return cs.recordMetrics(ctx, request.Experiment, metrics)
}

// summarize projects an aggregate onto a list row.
func summarize(c *campaign.Campaign) campaignSummary {
	summary := campaignSummary{
		ID:              c.ID,
		Name:            c.Name,
		Status:          string(c.Status),
		CreatedBy:       c.CreatedBy,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		StagesCompleted: len(c.StagesCompleted),
		Variants:        len(c.Variants),
	}
	if c.Experiment != nil {
		summary.ExperimentID = c.Experiment.ID
	}
	return summary
}
