// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maestro-foundation/maestro/lib/clock"
	"github.com/maestro-foundation/maestro/lib/config"
	"github.com/maestro-foundation/maestro/lib/llm"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

const (
	// defaultStageTimeout bounds a single stage attempt when the
	// service config does not set one.
	defaultStageTimeout = 60 * time.Second

	// stageAttempts is the per-stage attempt budget: the first try
	// plus two retries. Timed-out attempts spend the same budget.
	stageAttempts = 3

	// persistRetries is how many extra attempts a failed store write
	// gets before the run fails.
	persistRetries = 3
)

// backoffDelay returns the wait before retry n (1-based): 1s, 2s, 4s.
func backoffDelay(retry int) time.Duration {
	return time.Second << (retry - 1)
}

// ErrComplianceRejected reports that the compliance gate failed the
// generated content. Internal control flow between the stage loop and
// the run driver, not a wire error: the run terminates as rejected
// with an ordinary completed event.
var ErrComplianceRejected = errors.New("campaign rejected by compliance gate")

// StageError is a stage failure after the retry budget: the wrapped
// cause is the final attempt's error. Timeout marks a final attempt
// that exceeded the stage timeout.
type StageError struct {
	Stage    campaign.Stage
	Attempts int
	Timeout  bool
	Err      error
}

func (e *StageError) Error() string {
	noun := "attempts"
	if e.Attempts == 1 {
		noun = "attempt"
	}
	if e.Timeout {
		return fmt.Sprintf("stage %s failed after %d %s (timed out): %v", e.Stage, e.Attempts, noun, e.Err)
	}
	return fmt.Sprintf("stage %s failed after %d %s: %v", e.Stage, e.Attempts, noun, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline drives campaign runs: one goroutine per run walking the
// fixed stage order, persisting the aggregate after every mutation and
// publishing events to the run's bus. The pipeline owns each run's
// in-memory aggregate exclusively; everything else reads persisted
// snapshots from the store.
type Pipeline struct {
	store        *Store
	deps         stageDeps
	logger       *slog.Logger
	stageTimeout time.Duration

	mu     sync.Mutex
	runs   map[string]*campaignRun
	closed bool
}

// campaignRun is the registry entry for one live run.
type campaignRun struct {
	bus    *EventBus
	cancel context.CancelFunc
	done   chan struct{}
}

// PipelineConfig holds the collaborators for NewPipeline.
type PipelineConfig struct {
	// Store persists aggregates. Required.
	Store *Store

	// Generator produces stage completions. Required.
	Generator llm.Generator

	// Catalog matches targeting criteria to audience segments.
	// Required.
	Catalog *SegmentCatalog

	// Gate checks generated variants. Required.
	Gate *ComplianceGate

	// Clock drives timestamps, stage timeouts, and retry backoff.
	// Required.
	Clock clock.Clock

	// Logger receives run lifecycle messages. Required.
	Logger *slog.Logger

	// StageTimeout bounds one stage attempt. Defaults to 60s.
	StageTimeout time.Duration

	// Experiment supplies significance and sample-size parameters for
	// the experiment stage. Zero confidence and power default to 0.95
	// and 0.8.
	Experiment config.ExperimentConfig
}

// NewPipeline creates a pipeline with no active runs.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("pipeline: Store is required")
	case cfg.Generator == nil:
		return nil, errors.New("pipeline: Generator is required")
	case cfg.Catalog == nil:
		return nil, errors.New("pipeline: Catalog is required")
	case cfg.Gate == nil:
		return nil, errors.New("pipeline: Gate is required")
	case cfg.Clock == nil:
		return nil, errors.New("pipeline: Clock is required")
	case cfg.Logger == nil:
		return nil, errors.New("pipeline: Logger is required")
	}

	stageTimeout := cfg.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}
	experiment := cfg.Experiment
	if experiment.ConfidenceLevel == 0 {
		experiment.ConfidenceLevel = 0.95
	}
	if experiment.Power == 0 {
		experiment.Power = 0.8
	}

	return &Pipeline{
		store: cfg.Store,
		deps: stageDeps{
			generator:  cfg.Generator,
			catalog:    cfg.Catalog,
			gate:       cfg.Gate,
			clock:      cfg.Clock,
			experiment: experiment,
		},
		logger:       cfg.Logger,
		stageTimeout: stageTimeout,
		runs:         make(map[string]*campaignRun),
	}, nil
}

// Start validates the request, creates and persists the aggregate,
// and launches the run goroutine. The returned bus already carries the
// started event. Validation failures arrive before any state exists.
func (p *Pipeline) Start(ctx context.Context, request campaign.CreateRequest) (string, *EventBus, error) {
	if err := request.Validate(); err != nil {
		return "", nil, err
	}

	now := p.deps.clock.Now().UnixNano()
	aggregate := &campaign.Campaign{
		ID:           campaign.NewCampaignID(),
		Name:         request.Name,
		Objective:    request.Objective,
		Status:       campaign.StatusCreated,
		CreativeMode: request.EffectiveCreativeMode(),
		Channels:     request.EffectiveChannels(),
		CreatedBy:    request.EffectiveCreatedBy(),
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	if err := p.store.Create(ctx, aggregate); err != nil {
		return "", nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := &campaignRun{bus: NewEventBus(), cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return "", nil, errors.New("pipeline: shutting down")
	}
	p.runs[aggregate.ID] = run
	p.mu.Unlock()

	run.bus.Publish(campaign.NewStartedEvent(aggregate))
	p.logger.Info("campaign run started",
		"campaign", aggregate.ID,
		"name", aggregate.Name,
		"created_by", aggregate.CreatedBy,
	)

	go p.run(runCtx, aggregate, newStageAdapters(p.deps, request), run, aggregate.ID)
	return aggregate.ID, run.bus, nil
}

// Cancel requests cooperative cancellation of a live run. The run
// observes it at the next stage or retry boundary, or mid-attempt
// through the attempt context. Returns false when no run with this ID
// is active.
func (p *Pipeline) Cancel(id string) bool {
	p.mu.Lock()
	run, ok := p.runs[id]
	p.mu.Unlock()
	if ok {
		run.cancel()
	}
	return ok
}

// LiveBus returns the event bus of an active run.
func (p *Pipeline) LiveBus(id string) (*EventBus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[id]
	if !ok {
		return nil, false
	}
	return run.bus, true
}

// ActiveRuns returns the number of in-flight campaign runs.
func (p *Pipeline) ActiveRuns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

// Shutdown cancels every active run and waits for each to reach a
// terminal state, or until ctx expires. New runs are refused once
// shutdown begins.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	running := make([]*campaignRun, 0, len(p.runs))
	for _, run := range p.runs {
		run.cancel()
		running = append(running, run)
	}
	p.mu.Unlock()

	for _, run := range running {
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Pipeline) unregister(id string) {
	p.mu.Lock()
	delete(p.runs, id)
	p.mu.Unlock()
}

// run walks the stage order for one campaign. Every terminal path
// persists the aggregate, publishes a final event, and closes the bus.
func (p *Pipeline) run(ctx context.Context, aggregate *campaign.Campaign, adapters []stageAdapter, run *campaignRun, id string) {
	// Unregister before closing the bus: a watcher that observes the
	// close and re-resolves the campaign must find the registry entry
	// gone and the terminal snapshot persisted.
	defer close(run.done)
	defer run.bus.Close()
	defer p.unregister(id)

	for _, adapter := range adapters {
		stage := adapter.Name()
		if ctx.Err() != nil {
			p.finishRun(aggregate, campaign.StatusCancelled, run.bus)
			return
		}

		aggregate.Status = stage.Status()
		if err := p.persist(aggregate); err != nil {
			p.failRun(aggregate, stage, fmt.Errorf("persisting stage transition: %w", err), run.bus)
			return
		}

		err := p.advanceStage(ctx, adapter, aggregate, run.bus)
		switch {
		case err == nil:
		case errors.Is(err, ErrComplianceRejected):
			p.finishRun(aggregate, campaign.StatusRejected, run.bus)
			return
		case ctx.Err() != nil:
			p.finishRun(aggregate, campaign.StatusCancelled, run.bus)
			return
		default:
			p.failRun(aggregate, stage, err, run.bus)
			return
		}
	}

	p.finishRun(aggregate, campaign.StatusCompleted, run.bus)
}

// advanceStage executes one stage to acceptance: run the attempt loop,
// append the produced messages, apply the aggregate mutation, mark the
// stage complete, persist, then publish the message events. A failed
// attempt's output never touches the aggregate, so a retry cannot
// duplicate messages. Returns ErrComplianceRejected after persisting a
// failing compliance verdict.
func (p *Pipeline) advanceStage(ctx context.Context, adapter stageAdapter, aggregate *campaign.Campaign, bus *EventBus) error {
	result, err := p.executeStage(ctx, adapter, aggregate)
	if err != nil {
		return err
	}

	stage := adapter.Name()
	events := make([]campaign.Event, 0, len(result.messages))
	for _, content := range result.messages {
		message := campaign.StageMessage{
			ID:        campaign.NewMessageID(),
			Stage:     stage,
			Role:      adapter.Role(),
			Content:   content,
			Timestamp: p.deps.clock.Now().UnixNano(),
		}
		aggregate.Messages = append(aggregate.Messages, message)
		events = append(events, campaign.NewMessageEvent(aggregate.ID, message))
	}
	if result.mutate != nil {
		result.mutate(aggregate)
	}
	aggregate.StagesCompleted = append(aggregate.StagesCompleted, stage)

	if err := p.persist(aggregate); err != nil {
		return fmt.Errorf("persisting stage output: %w", err)
	}
	for _, event := range events {
		bus.Publish(event)
	}

	if result.rejected {
		return ErrComplianceRejected
	}
	return nil
}

// executeStage runs the attempt loop for one stage: per-attempt
// timeout on the pipeline clock, backoff between attempts, permanent
// provider errors cut the budget short. Run cancellation surfaces as
// the context error, never as a StageError.
func (p *Pipeline) executeStage(ctx context.Context, adapter stageAdapter, aggregate *campaign.Campaign) (stageResult, error) {
	var lastErr error
	lastTimedOut := false

	for attempt := 1; attempt <= stageAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-p.deps.clock.After(backoffDelay(attempt - 1)):
			case <-ctx.Done():
				return stageResult{}, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return stageResult{}, err
		}

		attemptCtx, release := p.stageAttemptContext(ctx)
		result, err := adapter.Execute(attemptCtx, aggregate)
		timedOut := errors.Is(context.Cause(attemptCtx), context.DeadlineExceeded) && ctx.Err() == nil
		release()

		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return stageResult{}, ctx.Err()
		}

		lastErr = err
		lastTimedOut = timedOut
		if timedOut {
			lastErr = context.DeadlineExceeded
		}

		var providerErr *llm.ProviderError
		if errors.As(err, &providerErr) && !providerErr.IsTransient() {
			p.logger.Warn("stage failed with a permanent provider error",
				"campaign", aggregate.ID,
				"stage", adapter.Name(),
				"status", providerErr.StatusCode,
				"error", err,
			)
			return stageResult{}, &StageError{Stage: adapter.Name(), Attempts: attempt, Err: err}
		}
		p.logger.Warn("stage attempt failed",
			"campaign", aggregate.ID,
			"stage", adapter.Name(),
			"attempt", attempt,
			"timed_out", timedOut,
			"error", err,
		)
	}

	return stageResult{}, &StageError{
		Stage:    adapter.Name(),
		Attempts: stageAttempts,
		Timeout:  lastTimedOut,
		Err:      lastErr,
	}
}

// stageAttemptContext derives the per-attempt context, cancelled with
// cause DeadlineExceeded when the stage timeout elapses on the
// pipeline clock. The release func must be called once the attempt
// ends.
func (p *Pipeline) stageAttemptContext(ctx context.Context) (context.Context, func()) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	released := make(chan struct{})
	go func() {
		select {
		case <-p.deps.clock.After(p.stageTimeout):
			cancel(context.DeadlineExceeded)
		case <-released:
		}
	}()
	return attemptCtx, func() {
		close(released)
		cancel(nil)
	}
}

// persist writes the aggregate with the version it last read or wrote,
// retrying storage failures and version conflicts on the backoff
// schedule. Persistence is never interrupted by run cancellation: a
// cancelled run still records its terminal state.
func (p *Pipeline) persist(aggregate *campaign.Campaign) error {
	var err error
	for attempt := 0; ; attempt++ {
		aggregate.UpdatedAt = p.deps.clock.Now().UnixNano()
		err = p.store.Update(context.Background(), aggregate, aggregate.Version)
		if err == nil {
			return nil
		}
		if attempt >= persistRetries {
			return err
		}
		p.logger.Warn("campaign persist failed, retrying",
			"campaign", aggregate.ID,
			"attempt", attempt+1,
			"error", err,
		)
		<-p.deps.clock.After(backoffDelay(attempt + 1))
	}
}

// finishRun records a terminal outcome (completed, rejected, or
// cancelled) and publishes the completed event. A persist failure here
// is logged rather than escalated: the outcome still reaches
// subscribers, and reads serve the last persisted snapshot.
func (p *Pipeline) finishRun(aggregate *campaign.Campaign, status campaign.Status, bus *EventBus) {
	aggregate.Status = status
	if err := p.persist(aggregate); err != nil {
		p.logger.Error("persisting terminal status failed",
			"campaign", aggregate.ID,
			"status", status,
			"error", err,
		)
	}
	bus.Publish(campaign.NewCompletedEvent(aggregate, runSummary(aggregate)))
	p.logger.Info("campaign run finished",
		"campaign", aggregate.ID,
		"status", status,
		"messages", len(aggregate.Messages),
	)
}

// failRun records a failed run and publishes the error event naming
// the failing stage. The partial aggregate remains queryable.
func (p *Pipeline) failRun(aggregate *campaign.Campaign, stage campaign.Stage, cause error, bus *EventBus) {
	aggregate.Status = campaign.StatusFailed
	if err := p.persist(aggregate); err != nil {
		p.logger.Error("persisting failed status",
			"campaign", aggregate.ID,
			"error", err,
		)
	}
	event := campaign.NewErrorEvent(aggregate.ID, stage, cause.Error(), p.deps.clock.Now().UnixNano())
	event.Status = campaign.StatusFailed
	bus.Publish(event)
	p.logger.Warn("campaign run failed",
		"campaign", aggregate.ID,
		"stage", stage,
		"error", cause,
	)
}

// runSummary renders the completed event's one-line summary.
func runSummary(aggregate *campaign.Campaign) string {
	switch aggregate.Status {
	case campaign.StatusCompleted:
		if aggregate.Experiment != nil {
			return fmt.Sprintf("Campaign completed: %d variants approved, experiment %s ready under flag %s.",
				len(aggregate.Variants), aggregate.Experiment.ID, aggregate.Experiment.FeatureFlagID)
		}
		return "Campaign completed."
	case campaign.StatusRejected:
		violations := 0
		if aggregate.Compliance != nil {
			violations = len(aggregate.Compliance.Violations)
		}
		return fmt.Sprintf("Campaign rejected by compliance review (%d violations).", violations)
	case campaign.StatusCancelled:
		return "Campaign cancelled by request."
	}
	return ""
}
