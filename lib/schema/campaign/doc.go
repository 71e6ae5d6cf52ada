// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package campaign defines the Maestro campaign protocol types: the
// campaign aggregate, its stage and status enumerations, content
// variants with citations, compliance reports, experiment
// configuration, and the stream event frames delivered to watchers.
//
// These types are serialized as CBOR on the service socket wire and as
// JSON on the HTTP surface. JSON struct tags are used so that the
// fxamacker/cbor library's json-tag fallback provides correct field
// naming for both formats (see lib/codec doc.go for the tagging
// convention).
//
// The aggregate is mutated exclusively by the pipeline controller in
// cmd/maestro-campaign-service; everything else reads snapshots. The
// Validate methods check structural consistency, including the two
// aggregate invariants the controller relies on: StagesCompleted is
// always a prefix of the fixed stage order, and Experiment is non-nil
// only after a passing compliance report.
package campaign
