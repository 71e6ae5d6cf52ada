// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/maestro-foundation/maestro/lib/bm25"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// Scorer assigns a severity score per safety category to a piece of
// text. Scores range 0 (clean) to campaign.MaxCategoryScore.
// Categories absent from the returned map are treated as 0.
type Scorer interface {
	Score(ctx context.Context, text string) (map[campaign.Category]int, error)
}

// ComplianceGate checks generated variants against the compliance
// policy. Every variant is checked against every rule and all
// violations are collected; the gate never stops at the first failure,
// so a rejection report tells the reviewer everything that is wrong.
//
// A scorer failure is an error, not a rejection: the gate refuses to
// pass or fail content it could not score.
type ComplianceGate struct {
	policy CompliancePolicy
	scorer Scorer
}

// NewComplianceGate builds a gate from a policy and a scorer.
func NewComplianceGate(policy CompliancePolicy, scorer Scorer) *ComplianceGate {
	return &ComplianceGate{policy: policy, scorer: scorer}
}

// Check runs all compliance rules over the variants and returns the
// report. checkedAt stamps the report, in Unix nanoseconds.
func (g *ComplianceGate) Check(ctx context.Context, variants []campaign.ContentVariant, checkedAt int64) (*campaign.ComplianceReport, error) {
	var violations []campaign.Violation

	for i := range variants {
		variant := &variants[i]
		text := variant.Text
		if variant.Subject != "" {
			text = variant.Subject + "\n" + variant.Text
		}

		scores, err := g.scorer.Score(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("compliance gate: scoring variant %s: %w", variant.Label, err)
		}
		// Categories() has a fixed order, keeping violation order
		// stable across runs.
		for _, category := range campaign.Categories() {
			threshold := g.policy.Thresholds[category]
			if score := scores[category]; score > threshold {
				violations = append(violations, campaign.Violation{
					VariantLabel: variant.Label,
					Kind:         "category",
					Category:     category,
					Score:        score,
					Threshold:    threshold,
				})
			}
		}

		lowered := strings.ToLower(text)
		for _, phrase := range g.policy.BannedPhrases {
			if strings.Contains(lowered, phrase) {
				violations = append(violations, campaign.Violation{
					VariantLabel: variant.Label,
					Kind:         "phrase",
					Phrase:       phrase,
				})
			}
		}

		if g.policy.RequireCitations && len(variant.Citations) == 0 {
			violations = append(violations, campaign.Violation{
				VariantLabel: variant.Label,
				Kind:         "citation",
			})
		}
	}

	return &campaign.ComplianceReport{
		Passed:     len(violations) == 0,
		Violations: violations,
		CheckedAt:  checkedAt,
	}, nil
}

// lexiconEntry is one keyword in the built-in severity lexicon.
// Single-word keywords match whole tokens; multi-word keywords match
// as case-insensitive substrings.
type lexiconEntry struct {
	keyword  string
	category campaign.Category
	severity int
}

// lexiconScorer is the offline fallback scorer used when no scoring
// endpoint is configured. It assigns each category the maximum
// severity among matched lexicon keywords. Deliberately coarse: the
// lexicon catches obviously unsuitable marketing copy, not nuance.
type lexiconScorer struct {
	entries []lexiconEntry
}

func newLexiconScorer() *lexiconScorer {
	return &lexiconScorer{entries: []lexiconEntry{
		{"supremacist", campaign.CategoryHate, 5},
		{"bigoted", campaign.CategoryHate, 4},
		{"racial purity", campaign.CategoryHate, 6},
		{"kill", campaign.CategoryViolence, 4},
		{"assault", campaign.CategoryViolence, 4},
		{"weapon", campaign.CategoryViolence, 3},
		{"beat them senseless", campaign.CategoryViolence, 6},
		{"explicit", campaign.CategorySexual, 3},
		{"nsfw", campaign.CategorySexual, 4},
		{"suicide", campaign.CategorySelfHarm, 5},
		{"self-harm", campaign.CategorySelfHarm, 5},
		{"hurt yourself", campaign.CategorySelfHarm, 5},
	}}
}

// Score implements Scorer. Matching is token-based for single words
// so "skill" does not trip "kill".
func (s *lexiconScorer) Score(ctx context.Context, text string) (map[campaign.Category]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := make(map[string]struct{})
	for _, token := range bm25.Tokenize(text) {
		tokens[token] = struct{}{}
	}
	lowered := strings.ToLower(text)

	scores := make(map[campaign.Category]int, len(campaign.Categories()))
	for _, category := range campaign.Categories() {
		scores[category] = 0
	}
	for _, entry := range s.entries {
		matched := false
		if strings.ContainsAny(entry.keyword, " -") {
			matched = strings.Contains(lowered, entry.keyword)
		} else {
			_, matched = tokens[entry.keyword]
		}
		if matched && entry.severity > scores[entry.category] {
			scores[entry.category] = entry.severity
		}
	}
	return scores, nil
}
