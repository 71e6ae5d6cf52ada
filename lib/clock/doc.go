// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability.
//
// Production code accepts a Clock interface parameter instead of
// calling time.Now, time.After, time.NewTicker, or time.Sleep
// directly. Real() provides standard library behavior; Fake()
// provides a deterministic clock that advances only when Advance is
// called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Controller struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	c := &Controller{clock: clock.Real()}
//
// In tests:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	c := &Controller{clock: fake}
//	// ... start goroutines ...
//	fake.WaitForTimers(1)           // wait for a timer to register
//	fake.Advance(5 * time.Second)   // fire it deterministically
//
// Use WaitForTimers before Advance to eliminate the race between
// timer registration in a goroutine and time advancement in the test.
package clock
