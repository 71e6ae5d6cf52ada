// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package stats

import "fmt"

// AllocationWindow maps a variant to a half-open percentile range
// [From, To) of experiment traffic. Windows are cumulative: a user
// hashed to percentile 45 falls into the window containing 45.
type AllocationWindow struct {
	Variant string `json:"variant"`
	From    int    `json:"from"`
	To      int    `json:"to"`
}

// ValidateAllocation checks that traffic allocation percentages are
// positive integers summing to exactly 100.
func ValidateAllocation(allocations []int) error {
	if len(allocations) == 0 {
		return fmt.Errorf("stats: allocation list is empty")
	}
	sum := 0
	for i, allocation := range allocations {
		if allocation <= 0 {
			return fmt.Errorf("stats: allocation %d is %d, must be a positive integer", i, allocation)
		}
		sum += allocation
	}
	if sum != 100 {
		return fmt.Errorf("stats: allocations sum to %d, must sum to exactly 100", sum)
	}
	return nil
}

// EvenAllocation splits 100 percent of traffic evenly across the
// given number of arms, giving the integer remainder to the first arm
// (the control, by convention). Three arms yield [34, 33, 33]. The
// result always passes ValidateAllocation. Returns nil for a
// non-positive arm count.
func EvenAllocation(arms int) []int {
	if arms <= 0 {
		return nil
	}
	base := 100 / arms
	if base == 0 {
		return nil
	}
	allocations := make([]int, arms)
	for i := range allocations {
		allocations[i] = base
	}
	allocations[0] += 100 % arms
	return allocations
}

// AllocationWindows converts per-variant percentages into cumulative
// percentile windows, one per label. The allocations must pass
// ValidateAllocation and match the label count.
func AllocationWindows(labels []string, allocations []int) ([]AllocationWindow, error) {
	if err := ValidateAllocation(allocations); err != nil {
		return nil, err
	}
	if len(labels) != len(allocations) {
		return nil, fmt.Errorf("stats: %d labels for %d allocations", len(labels), len(allocations))
	}

	windows := make([]AllocationWindow, len(labels))
	from := 0
	for i, label := range labels {
		windows[i] = AllocationWindow{
			Variant: label,
			From:    from,
			To:      from + allocations[i],
		}
		from += allocations[i]
	}
	return windows, nil
}
