// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package stats

import "testing"

func TestMinimumSampleSize(t *testing.T) {
	// Baseline 8%, detect an absolute lift of 1 point, 95%/80%.
	// (1.9600+0.8416)² · (0.08·0.92 + 0.09·0.91) / 0.01² ≈ 12205.008.
	n, err := MinimumSampleSize(0.08, 0.01, 0.95, 0.8)
	if err != nil {
		t.Fatalf("MinimumSampleSize: %v", err)
	}
	if n != 12206 {
		t.Errorf("n = %d, want 12206", n)
	}
}

func TestMinimumSampleSizeMonotonicInEffect(t *testing.T) {
	// A larger detectable effect needs strictly less data.
	deltas := []float64{0.005, 0.01, 0.02, 0.05}
	previous := 0
	for i, delta := range deltas {
		n, err := MinimumSampleSize(0.08, delta, 0.95, 0.8)
		if err != nil {
			t.Fatalf("delta %v: %v", delta, err)
		}
		if i > 0 && n >= previous {
			t.Errorf("delta %v: n = %d, want < %d (strictly decreasing)", delta, n, previous)
		}
		previous = n
	}
}

func TestMinimumSampleSizeMonotonicInPower(t *testing.T) {
	low, err := MinimumSampleSize(0.08, 0.01, 0.95, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	high, err := MinimumSampleSize(0.08, 0.01, 0.95, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if high <= low {
		t.Errorf("power 0.9 needs %d, power 0.7 needs %d; want more data for more power", high, low)
	}
}

func TestMinimumSampleSizeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name       string
		baseline   float64
		delta      float64
		confidence float64
		power      float64
	}{
		{"zero baseline", 0, 0.01, 0.95, 0.8},
		{"baseline at one", 1, 0.01, 0.95, 0.8},
		{"zero effect", 0.08, 0, 0.95, 0.8},
		{"negative effect", 0.08, -0.01, 0.95, 0.8},
		{"effect overflows rate", 0.95, 0.06, 0.95, 0.8},
		{"confidence at one", 0.08, 0.01, 1, 0.8},
		{"zero power", 0.08, 0.01, 0.95, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := MinimumSampleSize(test.baseline, test.delta, test.confidence, test.power)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
