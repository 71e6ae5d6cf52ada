// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package redact

import (
	"regexp"
	"slices"
	"strings"
)

// rule pairs a PII pattern with its category name and placeholder.
// Several rules may share a category (phone number formats); the
// category is reported once regardless of how many rules hit.
type rule struct {
	category    string
	pattern     *regexp.Regexp
	placeholder string
}

var piiRules = []rule{
	{
		category:    "email",
		pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		placeholder: "[EMAIL_REDACTED]",
	},
	{
		category:    "phone",
		pattern:     regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		placeholder: "[PHONE_REDACTED]",
	},
	{
		category:    "phone",
		pattern:     regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`),
		placeholder: "[PHONE_REDACTED]",
	},
	{
		category:    "phone",
		pattern:     regexp.MustCompile(`\+\d{1,3}\s*\d{3}[-.\s]?\d{3}[-.\s]?\d{4}`),
		placeholder: "[PHONE_REDACTED]",
	},
	{
		category:    "ssn",
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		placeholder: "[SSN_REDACTED]",
	},
	{
		category:    "credit_card",
		pattern:     regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`),
		placeholder: "[CC_REDACTED]",
	},
	{
		category:    "ip_address",
		pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		placeholder: "[IP_REDACTED]",
	},
	{
		category:    "address",
		pattern:     regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z]+\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b`),
		placeholder: "[ADDRESS_REDACTED]",
	},
}

// injectionPatterns match common jailbreak phrasings. Matched against
// lowercased input.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore (previous|above|all) instructions?`),
	regexp.MustCompile(`disregard (previous|above|all) (instructions?|rules?)`),
	regexp.MustCompile(`you are now`),
	regexp.MustCompile(`new (instructions?|rules?|system prompt)`),
	regexp.MustCompile(`</system>`),
	regexp.MustCompile(`<\|im_start\|>`),
}

// Text replaces PII matches with typed placeholders and returns the
// rewritten text plus the categories that were redacted, in rule
// order. The categories slice is nil when nothing matched.
func Text(text string) (string, []string) {
	var categories []string
	redacted := text

	for _, r := range piiRules {
		if !r.pattern.MatchString(redacted) {
			continue
		}
		redacted = r.pattern.ReplaceAllString(redacted, r.placeholder)
		if !slices.Contains(categories, r.category) {
			categories = append(categories, r.category)
		}
	}

	return redacted, categories
}

// Detect reports PII categories present in text without rewriting it.
func Detect(text string) []string {
	var categories []string
	for _, r := range piiRules {
		if !r.pattern.MatchString(text) {
			continue
		}
		if !slices.Contains(categories, r.category) {
			categories = append(categories, r.category)
		}
	}
	return categories
}

// DetectInjection reports whether text contains a known
// prompt-injection phrasing.
func DetectInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}
