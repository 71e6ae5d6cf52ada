// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
	"github.com/maestro-foundation/maestro/lib/stats"
)

// recordAttempts bounds the read-mutate-update loop in recordMetrics.
// Conflicts only arise from concurrent record or cancel calls against
// the same campaign, so contention is rare and short.
const recordAttempts = 3

// recordResponse reports the outcome of recording metrics. Result is
// nil when the analysis is not yet computable (for example only the
// control arm has data so far). Served over both CBOR and JSON.
type recordResponse struct {
	Experiment string `json:"experiment_id"`

	// Recorded is the number of arms upserted by this request.
	Recorded int `json:"recorded"`

	// Result is the recomputed significance analysis over all stored
	// metrics, when computable.
	Result *campaign.SignificanceResult `json:"result,omitempty"`
}

// analyzeExperiment computes the significance analysis for an
// experiment from its stored metrics. Read-only: when the stored
// metrics cannot support a fresh analysis (none recorded, or the
// control arm missing), a previously persisted result is returned
// instead; with neither, the computation error is surfaced. A
// non-zero confidence overrides the experiment's stored level for
// this analysis only (the returned result reports the level it was
// computed at).
func (cs *CampaignService) analyzeExperiment(ctx context.Context, experimentID string, confidence float64) (*campaign.SignificanceResult, error) {
	aggregate, err := cs.store.FindByExperiment(ctx, experimentID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("experiment %s: %w", experimentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading experiment %s: %w", experimentID, err)
	}

	metrics, err := cs.store.MetricsForExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("loading metrics for %s: %w", experimentID, err)
	}

	result, err := cs.computeAnalysis(aggregate.Experiment, metrics, confidence)
	if err != nil {
		if aggregate.Experiment.Result != nil {
			return aggregate.Experiment.Result, nil
		}
		return nil, err
	}
	return result, nil
}

// recordMetrics upserts observed counts for an experiment's arms,
// recomputes the analysis over everything stored so far, and persists
// metrics and result onto the owning campaign aggregate. The
// read-mutate-update loop retries on version conflicts so concurrent
// recorders cannot clobber each other's arms.
func (cs *CampaignService) recordMetrics(ctx context.Context, experimentID string, metrics []campaign.VariantMetrics) (*recordResponse, error) {
	for attempt := 1; ; attempt++ {
		aggregate, err := cs.store.FindByExperiment(ctx, experimentID)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("experiment %s: %w", experimentID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("loading experiment %s: %w", experimentID, err)
		}

		// Every recorded label must be a configured arm. Anything else
		// is a caller bug (wrong experiment, typoed label) and must not
		// silently pollute the analysis.
		arms := make(map[string]bool, len(aggregate.Experiment.Allocations))
		for _, allocation := range aggregate.Experiment.Allocations {
			arms[allocation.VariantLabel] = true
		}
		for i := range metrics {
			if !arms[metrics[i].VariantLabel] {
				return nil, fmt.Errorf("experiment %s has no arm %q", experimentID, metrics[i].VariantLabel)
			}
		}

		if err := cs.store.RecordMetrics(ctx, experimentID, metrics); err != nil {
			return nil, err
		}

		stored, err := cs.store.MetricsForExperiment(ctx, experimentID)
		if err != nil {
			return nil, fmt.Errorf("loading metrics for %s: %w", experimentID, err)
		}
		aggregate.Experiment.Metrics = stored

		result, err := cs.computeAnalysis(aggregate.Experiment, stored, 0)
		if err != nil {
			// Not an error at record time: arms report independently,
			// so early requests legitimately lack the control or any
			// treatment. The previously persisted result (if any)
			// stands until a computable set arrives.
			cs.logger.Debug("analysis not yet computable",
				"experiment", experimentID,
				"error", err,
			)
		} else {
			aggregate.Experiment.Result = result
		}
		aggregate.UpdatedAt = cs.clock.Now().UnixNano()

		err = cs.store.Update(ctx, aggregate, aggregate.Version)
		if errors.Is(err, ErrVersionConflict) && attempt < recordAttempts {
			cs.logger.Debug("metrics persist conflicted, retrying",
				"experiment", experimentID,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persisting metrics for %s: %w", experimentID, err)
		}

		return &recordResponse{
			Experiment: experimentID,
			Recorded:   len(metrics),
			Result:     result,
		}, nil
	}
}

// computeAnalysis runs the two-proportion test of every treatment arm
// against the control and assembles the stored result form. A
// non-zero confidence overrides the experiment's stored level. Errors
// when the stored metrics cannot support the test: nothing recorded,
// control arm missing, no treatment arm recorded, or an arm with zero
// impressions.
func (cs *CampaignService) computeAnalysis(experiment *campaign.Experiment, metrics []campaign.VariantMetrics, confidence float64) (*campaign.SignificanceResult, error) {
	if len(metrics) == 0 {
		return nil, fmt.Errorf("experiment %s has no recorded metrics", experiment.ID)
	}

	byLabel := make(map[string]campaign.VariantMetrics, len(metrics))
	for _, m := range metrics {
		byLabel[m.VariantLabel] = m
	}

	controlMetrics, ok := byLabel[experiment.ControlLabel]
	if !ok {
		return nil, fmt.Errorf("experiment %s: control arm %q has no recorded metrics", experiment.ID, experiment.ControlLabel)
	}
	control := stats.VariantObservation{
		Label: experiment.ControlLabel,
		Observation: stats.Observation{
			Conversions: int(controlMetrics.Conversions),
			Visits:      int(controlMetrics.Impressions),
		},
	}

	// Treatments in allocation order, skipping arms that have not
	// reported yet. Partial analyses are valid: a missing arm simply
	// has no comparison row until its counts arrive.
	var treatments []stats.VariantObservation
	for _, allocation := range experiment.Allocations {
		if allocation.VariantLabel == experiment.ControlLabel {
			continue
		}
		m, ok := byLabel[allocation.VariantLabel]
		if !ok {
			continue
		}
		treatments = append(treatments, stats.VariantObservation{
			Label: allocation.VariantLabel,
			Observation: stats.Observation{
				Conversions: int(m.Conversions),
				Visits:      int(m.Impressions),
			},
		})
	}
	if len(treatments) == 0 {
		return nil, fmt.Errorf("experiment %s: no treatment arm has recorded metrics", experiment.ID)
	}

	if confidence == 0 {
		confidence = experiment.ConfidenceLevel
	}
	comparison, err := stats.Compare(control, treatments, stats.Options{
		ConfidenceLevel: confidence,
		Tails:           cs.experiment.Tails,
	})
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", experiment.ID, err)
	}

	return significanceResult(comparison, confidence, cs.clock.Now().UnixNano()), nil
}

// significanceResult converts a stats comparison into the stored
// result form. The headline z-score and p-value are the winning
// treatment's when one exists, otherwise the treatment closest to
// significance.
func significanceResult(comparison stats.Comparison, confidenceLevel float64, analyzedAt int64) *campaign.SignificanceResult {
	comparisons := make([]campaign.VariantComparison, len(comparison.Results))
	headline := 0
	for i, r := range comparison.Results {
		comparisons[i] = campaign.VariantComparison{
			VariantLabel:   r.Label,
			ControlRate:    r.ControlRate,
			TreatmentRate:  r.TreatmentRate,
			UpliftPercent:  r.UpliftPercent,
			ZScore:         r.ZScore,
			PValue:         r.PValue,
			IsSignificant:  r.IsSignificant,
			ConfidenceLow:  r.ConfidenceLow,
			ConfidenceHigh: r.ConfidenceHigh,
		}
		if comparison.WinningVariant != "" {
			if r.Label == comparison.WinningVariant {
				headline = i
			}
		} else if r.PValue < comparison.Results[headline].PValue {
			headline = i
		}
	}

	return &campaign.SignificanceResult{
		ControlLabel:    comparison.ControlLabel,
		ZScore:          comparisons[headline].ZScore,
		PValue:          comparisons[headline].PValue,
		ConfidenceLevel: confidenceLevel,
		IsSignificant:   comparisons[headline].IsSignificant,
		WinningVariant:  comparison.WinningVariant,
		Recommendation:  comparison.Recommendation,
		Comparisons:     comparisons,
		AnalyzedAt:      analyzedAt,
	}
}
