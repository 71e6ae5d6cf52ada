// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic interface for text
// generation APIs.
//
// The primary abstraction is [Generator], which produces a complete
// [Response] for a [Request]. Provider implementations translate
// between the common types in this package and each vendor's wire
// format.
//
// Two implementations ship with Maestro:
//
//   - [OpenAI]: any API implementing the OpenAI chat completions wire
//     format (OpenAI, Azure OpenAI, OpenRouter, vLLM, Ollama,
//     llama.cpp, etc.), with client-side request throttling
//   - [Scripted]: deterministic offline responses for development
//     deployments and tests; no network access and no API key
//
// [GeneratorFunc] adapts a plain function to the interface for tests
// that need a blocking or failing provider.
//
// Errors from a provider's HTTP API surface as [ProviderError], which
// classifies rate limiting and server overload separately from
// permanent request errors so retry policies can branch on
// [ProviderError.IsTransient].
package llm
