// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package stats

import (
	"fmt"
	"math"
)

// MinimumSampleSize computes the per-arm sample size required to
// detect an absolute rate difference delta over a baseline conversion
// rate, at the given confidence level and power, using the standard
// two-proportion power formula:
//
//	n = ((z_{α/2} + z_β)² · (p(1−p) + (p+δ)(1−p−δ))) / δ²
//
// rounded up to the next integer. The result grows as delta shrinks:
// detecting smaller effects needs more data.
func MinimumSampleSize(baseline, delta, confidence, power float64) (int, error) {
	if baseline <= 0 || baseline >= 1 {
		return 0, fmt.Errorf("stats: baseline rate %v outside (0, 1)", baseline)
	}
	if delta <= 0 {
		return 0, fmt.Errorf("stats: minimum detectable effect must be positive, got %v", delta)
	}
	if baseline+delta >= 1 {
		return 0, fmt.Errorf("stats: baseline %v plus effect %v reaches or exceeds 1", baseline, delta)
	}
	if confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("stats: confidence level %v outside (0, 1)", confidence)
	}
	if power <= 0 || power >= 1 {
		return 0, fmt.Errorf("stats: power %v outside (0, 1)", power)
	}

	alpha := 1 - confidence
	zAlpha := NormalQuantile(1 - alpha/2)
	zBeta := NormalQuantile(power)

	treatment := baseline + delta
	variance := baseline*(1-baseline) + treatment*(1-treatment)
	n := (zAlpha + zBeta) * (zAlpha + zBeta) * variance / (delta * delta)

	return int(math.Ceil(n)), nil
}
