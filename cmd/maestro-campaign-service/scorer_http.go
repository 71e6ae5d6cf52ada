// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// httpScorer scores text through a remote content-safety service
// implementing the analyze wire shape: POST {"text": ...} returning
// per-category severities. Used in staging and production; development
// runs on the lexicon scorer.
type httpScorer struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// newHTTPScorer creates a scorer client. nil httpClient uses
// http.DefaultClient.
func newHTTPScorer(endpoint, apiKey string, httpClient *http.Client) *httpScorer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &httpScorer{httpClient: httpClient, endpoint: endpoint, apiKey: apiKey}
}

// Score implements Scorer.
func (s *httpScorer) Score(ctx context.Context, text string) (map[campaign.Category]int, error) {
	body, err := json.Marshal(scorerRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("compliance scorer: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("compliance scorer: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	httpResponse, err := s.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("compliance scorer: sending request: %w", err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))
		return nil, fmt.Errorf("compliance scorer: endpoint returned %d: %s",
			httpResponse.StatusCode, strings.TrimSpace(string(detail)))
	}

	var wireResponse scorerResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResponse); err != nil {
		return nil, fmt.Errorf("compliance scorer: decoding response: %w", err)
	}

	scores := make(map[campaign.Category]int, len(campaign.Categories()))
	for _, category := range campaign.Categories() {
		scores[category] = 0
	}
	for _, analysis := range wireResponse.CategoriesAnalysis {
		category, known := normalizeScorerCategory(analysis.Category)
		if !known {
			// Endpoints may score categories this gate does not
			// enforce.
			continue
		}
		if analysis.Severity < 0 || analysis.Severity > campaign.MaxCategoryScore {
			return nil, fmt.Errorf("compliance scorer: category %s severity %d outside 0-%d",
				analysis.Category, analysis.Severity, campaign.MaxCategoryScore)
		}
		if analysis.Severity > scores[category] {
			scores[category] = analysis.Severity
		}
	}
	return scores, nil
}

// normalizeScorerCategory maps an endpoint's category spelling onto
// ours. Content-safety services vary between "SelfHarm", "self-harm",
// and "self_harm".
func normalizeScorerCategory(name string) (campaign.Category, bool) {
	normalized := strings.ToLower(name)
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	switch normalized {
	case "hate":
		return campaign.CategoryHate, true
	case "violence":
		return campaign.CategoryViolence, true
	case "sexual":
		return campaign.CategorySexual, true
	case "selfharm":
		return campaign.CategorySelfHarm, true
	}
	return "", false
}

// --- Scorer wire types ---
//
// The analyze shape used by hosted content-safety services: severity
// is an integer scale where 0 is clean.

type scorerRequest struct {
	Text string `json:"text"`
}

type scorerResponse struct {
	CategoriesAnalysis []categoryAnalysis `json:"categories_analysis"`
}

type categoryAnalysis struct {
	Category string `json:"category"`
	Severity int    `json:"severity"`
}
