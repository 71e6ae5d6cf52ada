// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the maestro
// unified CLI.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a params struct factory,
// and a Run function. Commands are assembled into a tree in
// cmd/maestro/commands and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help output
// with examples.
//
// Flags are declared as struct tags on a command's params struct and
// bound with [BindFlags]; see params.go for the tag grammar. Embedding
// [JSONOutput] in a params struct adds the --json flag and the
// EmitJSON method for machine-readable output.
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against all known names and
// suggests the closest match (threshold: distance <= 3). This is
// implemented in suggest.go.
//
// Commands that talk to a Maestro service embed a wrapper around
// [ServiceConnection], which owns the --socket flag and its
// environment-variable default, and produces a connected
// [service.ServiceClient].
package cli
