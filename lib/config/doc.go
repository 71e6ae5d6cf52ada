// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Maestro components.
//
// Configuration is loaded from a single file specified by either the
// MAESTRO_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter:
// the scripted generator is swapped for the openai provider unless a
// production section says otherwise.
//
// Variable expansion is performed on path, address, and secret fields
// after loading: ${HOME}, ${VAR}, and ${VAR:-default} patterns are
// expanded. Secrets such as generator.api_key are written as ${VAR}
// references so the file itself never holds credentials. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Generator, Scorer, Experiment
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Maestro packages.
package config
