// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// defaultCategoryThreshold is the per-category severity limit applied
// when the policy file does not set one. Scores above the threshold
// fail the gate; 2 permits mild severity and rejects moderate and up.
const defaultCategoryThreshold = 2

// CompliancePolicy configures the compliance gate: per-category
// severity thresholds, banned phrases, and whether variants must cite
// their claims. Loaded once at startup; edits to the policy file take
// effect on restart.
type CompliancePolicy struct {
	// Thresholds maps each safety category to its maximum acceptable
	// score. Every known category has an entry after LoadPolicy.
	Thresholds map[campaign.Category]int `json:"thresholds"`

	// BannedPhrases are matched case-insensitively as substrings of
	// variant subject and body text. Stored lowercase.
	BannedPhrases []string `json:"banned_phrases"`

	// RequireCitations rejects variants that carry no citations.
	RequireCitations bool `json:"require_citations"`
}

// DefaultPolicy returns the policy used when no policy file is
// configured: default thresholds for every category, no banned
// phrases, citations optional.
func DefaultPolicy() CompliancePolicy {
	thresholds := make(map[campaign.Category]int, len(campaign.Categories()))
	for _, category := range campaign.Categories() {
		thresholds[category] = defaultCategoryThreshold
	}
	return CompliancePolicy{Thresholds: thresholds}
}

// LoadPolicy reads a JSONC policy file. An empty path or a missing
// file yields DefaultPolicy; any other read or parse failure is an
// error, since running with a half-applied policy is worse than not
// starting. Categories absent from the file keep the default
// threshold.
func LoadPolicy(path string) (CompliancePolicy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return CompliancePolicy{}, fmt.Errorf("compliance policy: reading %s: %w", path, err)
	}

	// Strip comments and trailing commas before parsing as standard
	// JSON.
	stripped := jsonc.ToJSON(data)

	var file struct {
		Thresholds       map[string]int `json:"thresholds"`
		BannedPhrases    []string       `json:"banned_phrases"`
		RequireCitations bool           `json:"require_citations"`
	}
	if err := json.Unmarshal(stripped, &file); err != nil {
		return CompliancePolicy{}, fmt.Errorf("compliance policy: parsing %s: %w", path, err)
	}

	policy := DefaultPolicy()
	for name, threshold := range file.Thresholds {
		category := campaign.Category(name)
		if !campaign.IsValidCategory(category) {
			return CompliancePolicy{}, fmt.Errorf("compliance policy: %s: unknown category %q", path, name)
		}
		if threshold < 0 || threshold > campaign.MaxCategoryScore {
			return CompliancePolicy{}, fmt.Errorf("compliance policy: %s: category %s threshold must be 0-%d, got %d",
				path, name, campaign.MaxCategoryScore, threshold)
		}
		policy.Thresholds[category] = threshold
	}

	for _, phrase := range file.BannedPhrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		policy.BannedPhrases = append(policy.BannedPhrases, phrase)
	}
	policy.RequireCitations = file.RequireCitations

	return policy, nil
}
