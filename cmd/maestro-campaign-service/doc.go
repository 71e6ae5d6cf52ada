// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Maestro campaign service. Runs marketing campaigns through a fixed
// five-stage agent pipeline (strategy, segmentation, content,
// compliance, experiment), persists every stage transition to a SQLite
// aggregate store, and streams run events to connected clients.
//
// Two interfaces:
//   - CBOR Unix socket: CLI operations. One-shot actions (status, get,
//     list, analyze, record, cancel) and streaming actions (create,
//     watch) that carry campaign events until the run's terminal event.
//   - HTTP listener: REST endpoints mirroring the socket actions plus
//     POST /v1/campaigns, which streams the run as server-sent events.
//
// Configuration comes from a YAML file (--config flag or
// $MAESTRO_CONFIG), falling back to built-in development defaults: a
// scripted offline generator, the lexicon moderation scorer, and a
// state database under ~/.cache/maestro. Production deployments
// configure an OpenAI-compatible generator endpoint and optionally an
// external moderation endpoint and a segment catalog file.
//
// Campaign runs survive client disconnects: a run started over either
// surface continues to completion, and "watch" (or the aggregate
// endpoints) can reattach at any point. Runs do not survive process
// restarts; an interrupted run remains queryable in its last persisted
// state.
package main
