// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package stats implements the statistical machinery for campaign
// experiments: the two-proportion z-test used to compare treatment
// variants against a control, minimum sample size estimation from the
// standard two-proportion power formula, and traffic allocation
// validation.
//
// All functions are pure and deterministic. The normal CDF and
// quantile are computed from math.Erf and math.Erfinv rather than a
// lookup table, so results are accurate to floating-point precision.
//
// The significance convention is a two-tailed test by default, with
// the significance level derived from the confidence level as
// α = 1 − confidence. A one-tailed (improvement-only) test is
// available through [Options.Tails] for callers that want the
// stricter directional convention.
package stats
