// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"fmt"
	"math"
)

// Observation holds the raw counts for one experiment arm.
type Observation struct {
	Conversions int
	Visits      int
}

// Rate returns the conversion rate, or 0 when there are no visits.
func (o Observation) Rate() float64 {
	if o.Visits <= 0 {
		return 0
	}
	return float64(o.Conversions) / float64(o.Visits)
}

// VariantObservation pairs a variant label with its observed counts.
type VariantObservation struct {
	Label string
	Observation
}

// Options configures significance testing. The zero value selects the
// defaults: 95% confidence, two-tailed.
type Options struct {
	// ConfidenceLevel in (0, 1). The significance level is derived as
	// α = 1 − ConfidenceLevel. Defaults to 0.95.
	ConfidenceLevel float64

	// Tails selects the test convention: 2 for a two-tailed test
	// (difference in either direction), 1 for a one-tailed test
	// (treatment improvement only). Defaults to 2.
	Tails int
}

func (o Options) normalize() (Options, error) {
	if o.ConfidenceLevel == 0 {
		o.ConfidenceLevel = 0.95
	}
	if o.ConfidenceLevel <= 0 || o.ConfidenceLevel >= 1 {
		return o, fmt.Errorf("stats: confidence level %v outside (0, 1)", o.ConfidenceLevel)
	}
	if o.Tails == 0 {
		o.Tails = 2
	}
	if o.Tails != 1 && o.Tails != 2 {
		return o, fmt.Errorf("stats: tails must be 1 or 2, got %d", o.Tails)
	}
	return o, nil
}

// TestResult is the outcome of a two-proportion z-test for one
// treatment arm against the control arm.
type TestResult struct {
	ControlRate   float64
	TreatmentRate float64

	// UpliftPercent is the relative change of the treatment rate over
	// the control rate, in percent. Zero when the control rate is zero.
	UpliftPercent float64

	ZScore        float64
	PValue        float64
	IsSignificant bool

	// ConfidenceLow and ConfidenceHigh bound the confidence interval
	// on the absolute rate difference (treatment − control), computed
	// with the unpooled standard error.
	ConfidenceLow  float64
	ConfidenceHigh float64
}

// ZTest performs a pooled two-proportion z-test of treatment against
// control. Both arms must have at least one visit, and conversions
// must not exceed visits.
func ZTest(control, treatment Observation, opts Options) (TestResult, error) {
	opts, err := opts.normalize()
	if err != nil {
		return TestResult{}, err
	}
	if err := validateObservation("control", control); err != nil {
		return TestResult{}, err
	}
	if err := validateObservation("treatment", treatment); err != nil {
		return TestResult{}, err
	}

	controlRate := control.Rate()
	treatmentRate := treatment.Rate()
	difference := treatmentRate - controlRate

	var uplift float64
	if controlRate > 0 {
		uplift = difference / controlRate * 100
	}

	pooled := float64(control.Conversions+treatment.Conversions) /
		float64(control.Visits+treatment.Visits)
	pooledSE := math.Sqrt(pooled * (1 - pooled) *
		(1/float64(control.Visits) + 1/float64(treatment.Visits)))

	// Degenerate arms (both rates 0 or both 1) have zero pooled
	// variance. Report z = 0 rather than dividing by zero; the
	// p-value then reflects no evidence of a difference.
	var z float64
	if pooledSE > 0 {
		z = difference / pooledSE
	}

	var pValue float64
	switch opts.Tails {
	case 1:
		pValue = 1 - NormalCDF(z)
	default:
		pValue = 2 * (1 - NormalCDF(math.Abs(z)))
	}

	alpha := 1 - opts.ConfidenceLevel

	// Confidence interval on the rate difference uses the unpooled
	// standard error, since under the alternative the two arms have
	// different true rates.
	unpooledSE := math.Sqrt(
		controlRate*(1-controlRate)/float64(control.Visits) +
			treatmentRate*(1-treatmentRate)/float64(treatment.Visits))
	zCritical := NormalQuantile((1 + opts.ConfidenceLevel) / 2)

	return TestResult{
		ControlRate:    controlRate,
		TreatmentRate:  treatmentRate,
		UpliftPercent:  uplift,
		ZScore:         z,
		PValue:         pValue,
		IsSignificant:  pValue < alpha,
		ConfidenceLow:  difference - zCritical*unpooledSE,
		ConfidenceHigh: difference + zCritical*unpooledSE,
	}, nil
}

// VariantResult is one treatment's test outcome within a Comparison.
type VariantResult struct {
	Label string
	TestResult
}

// Comparison is the outcome of testing every treatment arm against
// the control arm.
type Comparison struct {
	ControlLabel string

	// Results holds one entry per treatment, in input order.
	Results []VariantResult

	// WinningVariant is the label of the treatment with the highest
	// conversion rate among those that are both significant and an
	// improvement over control. Empty when no treatment qualifies.
	WinningVariant string

	Recommendation string
}

// Compare runs ZTest for every treatment against the control and
// determines the winning variant and a recommendation.
func Compare(control VariantObservation, treatments []VariantObservation, opts Options) (Comparison, error) {
	if len(treatments) == 0 {
		return Comparison{}, fmt.Errorf("stats: at least one treatment variant is required")
	}

	comparison := Comparison{
		ControlLabel: control.Label,
		Results:      make([]VariantResult, 0, len(treatments)),
	}

	winnerIndex := -1
	declineIndex := -1
	for i, treatment := range treatments {
		result, err := ZTest(control.Observation, treatment.Observation, opts)
		if err != nil {
			return Comparison{}, fmt.Errorf("stats: variant %q: %w", treatment.Label, err)
		}
		comparison.Results = append(comparison.Results, VariantResult{
			Label:      treatment.Label,
			TestResult: result,
		})

		if !result.IsSignificant {
			continue
		}
		if result.TreatmentRate > result.ControlRate {
			if winnerIndex < 0 || result.TreatmentRate > comparison.Results[winnerIndex].TreatmentRate {
				winnerIndex = i
			}
		} else if declineIndex < 0 || result.PValue < comparison.Results[declineIndex].PValue {
			declineIndex = i
		}
	}

	switch {
	case winnerIndex >= 0:
		winner := comparison.Results[winnerIndex]
		comparison.WinningVariant = winner.Label
		comparison.Recommendation = fmt.Sprintf(
			"Variant %s shows significant improvement (%+.2f%% uplift, p=%.4f). Recommended: Deploy variant %s to full audience.",
			winner.Label, winner.UpliftPercent, winner.PValue, winner.Label)
	case declineIndex >= 0:
		decline := comparison.Results[declineIndex]
		comparison.Recommendation = fmt.Sprintf(
			"Variant %s shows significant decline (%+.2f%% change, p=%.4f). Recommended: Retain the control variant.",
			decline.Label, decline.UpliftPercent, decline.PValue)
	default:
		comparison.Recommendation = "No statistically significant difference detected. Recommend extending test duration or collecting more data."
	}

	return comparison, nil
}

// NormalCDF is the cumulative distribution function of the standard
// normal distribution.
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// NormalQuantile is the inverse of NormalCDF. The argument must lie
// in (0, 1); values outside produce NaN or infinities per math.Erfinv.
func NormalQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

func validateObservation(arm string, o Observation) error {
	if o.Visits <= 0 {
		return fmt.Errorf("stats: %s visits must be greater than zero, got %d", arm, o.Visits)
	}
	if o.Conversions < 0 {
		return fmt.Errorf("stats: %s conversions must not be negative, got %d", arm, o.Conversions)
	}
	if o.Conversions > o.Visits {
		return fmt.Errorf("stats: %s conversions (%d) exceed visits (%d)", arm, o.Conversions, o.Visits)
	}
	return nil
}
