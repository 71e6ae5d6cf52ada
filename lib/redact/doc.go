// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package redact masks personally identifiable information in text
// bound for external generation providers and logs.
//
// [Text] rewrites matches of six PII categories (email addresses,
// phone numbers, US social security numbers, credit card numbers, IP
// addresses, street addresses) into typed placeholders such as
// [EMAIL_REDACTED], and reports which categories were hit. [Detect]
// reports categories without rewriting, for audit logging.
//
// [DetectInjection] flags common prompt-injection phrasings
// ("ignore previous instructions", ChatML tag injection, and similar)
// so callers can refuse to forward hostile input to a provider.
//
// The patterns are intentionally simple regular expressions. They
// catch the common shapes that end up in campaign briefs by accident;
// they are not a DLP system.
package redact
