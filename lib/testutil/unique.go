// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for campaign names, request IDs, or
// message bodies that must be distinguishable in shared fixtures.
//
//	name := testutil.UniqueID("campaign")  // "campaign-1", "campaign-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
