// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/maestro-foundation/maestro/lib/clock"
	"github.com/maestro-foundation/maestro/lib/config"
	"github.com/maestro-foundation/maestro/lib/llm"
	"github.com/maestro-foundation/maestro/lib/redact"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
	"github.com/maestro-foundation/maestro/lib/stats"
)

// stageResult is a completed stage attempt: the message texts to
// append to the transcript (IDs, role, and timestamps are assigned on
// append) and a mutation merged into the aggregate once the attempt is
// accepted. rejected marks a compliance verdict that terminates the
// run as rejected instead of advancing.
type stageResult struct {
	messages []string
	mutate   func(*campaign.Campaign)
	rejected bool
}

// stageAdapter is one pipeline stage. Execute must leave the
// aggregate untouched: all changes ride in the returned result, so
// the controller can discard a failed attempt's output and retry with
// nothing half-applied.
type stageAdapter interface {
	Name() campaign.Stage
	Role() string
	Execute(ctx context.Context, aggregate *campaign.Campaign) (stageResult, error)
}

// stageDeps are the collaborators shared by all stages of all runs.
type stageDeps struct {
	generator  llm.Generator
	catalog    *SegmentCatalog
	gate       *ComplianceGate
	clock      clock.Clock
	experiment config.ExperimentConfig
}

// newStageAdapters builds the five stages for one run, in execution
// order. The validated create request rides along for the per-run
// settings the aggregate does not carry: requested variant count and
// the allocation override.
func newStageAdapters(deps stageDeps, request campaign.CreateRequest) []stageAdapter {
	return []stageAdapter{
		&strategyStage{deps: deps},
		&segmentationStage{deps: deps},
		&contentStage{deps: deps, variantCount: request.EffectiveVariantCount()},
		&complianceStage{deps: deps},
		&experimentStage{deps: deps, allocations: request.Allocations},
	}
}

// joinChannels renders a channel list for prompts and messages.
func joinChannels(channels []campaign.Channel) string {
	names := make([]string, len(channels))
	for i, channel := range channels {
		names[i] = string(channel)
	}
	return strings.Join(names, ", ")
}

// strategyBrief returns the strategy-stage transcript, redacted for
// inclusion in downstream prompts.
func strategyBrief(aggregate *campaign.Campaign) string {
	var parts []string
	for i := range aggregate.Messages {
		if aggregate.Messages[i].Stage == campaign.StageStrategy {
			parts = append(parts, aggregate.Messages[i].Content)
		}
	}
	text, _ := redact.Text(strings.Join(parts, "\n"))
	return text
}

// --- strategy ---

const strategySystemPrompt = "You are the Strategy Lead on a marketing campaign team. " +
	"Given a campaign objective, write a concise strategy brief: the key message, " +
	"the target outcome, the tone, and how each delivery channel should be used. " +
	"Plain prose, no headings."

type strategyStage struct {
	deps stageDeps
}

func (s *strategyStage) Name() campaign.Stage { return campaign.StageStrategy }
func (s *strategyStage) Role() string         { return campaign.StageStrategy.Role() }

func (s *strategyStage) Execute(ctx context.Context, aggregate *campaign.Campaign) (stageResult, error) {
	objective, _ := redact.Text(aggregate.Objective)
	response, err := s.deps.generator.Complete(ctx, llm.Request{
		System: strategySystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Campaign: %s\nObjective: %s\nChannels: %s",
			aggregate.Name, objective, joinChannels(aggregate.Channels))}},
	})
	if err != nil {
		return stageResult{}, err
	}
	brief := strings.TrimSpace(response.Text)
	if brief == "" {
		return stageResult{}, errors.New("provider returned an empty strategy brief")
	}
	return stageResult{messages: []string{brief}}, nil
}

// --- segmentation ---

const segmentationSystemPrompt = "You are the Data Segmenter on a marketing campaign team. " +
	"Given a campaign objective and strategy brief, respond with a single line of " +
	"audience targeting criteria: demographics, behaviors, and engagement traits. " +
	"No explanation, criteria only."

type segmentationStage struct {
	deps stageDeps
}

func (s *segmentationStage) Name() campaign.Stage { return campaign.StageSegmentation }
func (s *segmentationStage) Role() string         { return campaign.StageSegmentation.Role() }

func (s *segmentationStage) Execute(ctx context.Context, aggregate *campaign.Campaign) (stageResult, error) {
	objective, _ := redact.Text(aggregate.Objective)
	response, err := s.deps.generator.Complete(ctx, llm.Request{
		System: segmentationSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(
			"Objective: %s\n\nStrategy brief:\n%s", objective, strategyBrief(aggregate))}},
	})
	if err != nil {
		return stageResult{}, err
	}
	criteria := strings.TrimSpace(response.Text)
	if criteria == "" {
		return stageResult{}, errors.New("provider returned empty targeting criteria")
	}

	segment := s.deps.catalog.Match(criteria)
	var summary string
	if segment.MatchScore > 0 {
		summary = fmt.Sprintf("Matched audience segment %q: %s (%d recipients, score %.2f).",
			segment.Name, segment.Description, segment.Size, segment.MatchScore)
	} else {
		summary = fmt.Sprintf("No catalog entry matched; using the default profile %q (%d recipients).",
			segment.Name, segment.Size)
	}

	return stageResult{
		messages: []string{criteria, summary},
		mutate: func(c *campaign.Campaign) {
			c.Segment = &segment
		},
	}, nil
}

// --- content ---

const contentSystemPrompt = "You are the Content Creator on a marketing campaign team. " +
	"Write the requested message variants for the campaign described by the user, " +
	"one per requested variant, each tailored to its delivery channel. Format each " +
	"variant exactly as:\n\n" +
	"=== Variant A ===\n" +
	"Subject: <subject line>\n" +
	"<body text>\n\n" +
	"Label the variants A, B, C, ... in order. Omit the Subject line for sms " +
	"variants. Ground factual claims with inline citation markers of the form " +
	"[Source: <name>, Page <n>]."

type contentStage struct {
	deps         stageDeps
	variantCount int
}

func (s *contentStage) Name() campaign.Stage { return campaign.StageContent }
func (s *contentStage) Role() string         { return campaign.StageContent.Role() }

func (s *contentStage) Execute(ctx context.Context, aggregate *campaign.Campaign) (stageResult, error) {
	objective, _ := redact.Text(aggregate.Objective)

	channels := aggregate.Channels
	if len(channels) == 0 {
		channels = campaign.DefaultChannels
	}
	var plan []string
	for i := 0; i < s.variantCount; i++ {
		plan = append(plan, fmt.Sprintf("Variant %c: %s", 'A'+i, channels[i%len(channels)]))
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Objective: %s\n\nStrategy brief:\n%s\n", objective, strategyBrief(aggregate))
	if aggregate.Segment != nil {
		fmt.Fprintf(&prompt, "\nAudience: %s", aggregate.Segment.Name)
		if aggregate.Segment.Description != "" {
			fmt.Fprintf(&prompt, " (%s)", aggregate.Segment.Description)
		}
		prompt.WriteString("\n")
	}
	fmt.Fprintf(&prompt, "\nWrite these variants:\n%s", strings.Join(plan, "\n"))

	temperature := aggregate.CreativeMode.Temperature()
	response, err := s.deps.generator.Complete(ctx, llm.Request{
		System:      contentSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt.String()}},
		Temperature: &temperature,
	})
	if err != nil {
		return stageResult{}, err
	}

	variants, err := parseVariants(response.Text, s.variantCount, channels)
	if err != nil {
		return stageResult{}, err
	}

	return stageResult{
		messages: []string{strings.TrimSpace(response.Text)},
		mutate: func(c *campaign.Campaign) {
			c.Variants = variants
		},
	}, nil
}

var (
	variantHeaderPattern = regexp.MustCompile(`(?m)^===\s*Variant\s+([A-Za-z])\s*===\s*$`)
	citationPattern      = regexp.MustCompile(`\[Source:\s*([^,\]]+?)\s*(?:,\s*[Pp]age\s+(\d+)\s*)?\]`)
	subjectPattern       = regexp.MustCompile(`(?i)^subject:\s*`)
)

// parseVariants splits generated text on "=== Variant X ===" headers
// into content variants. Labels are assigned in block order regardless
// of the letters the provider wrote, channels round-robin over the
// campaign's channel list, and an optional leading "Subject:" line
// becomes the subject. The block count must match the requested count
// exactly; anything else fails the attempt so the retry budget can
// buy a better completion.
func parseVariants(text string, expected int, channels []campaign.Channel) ([]campaign.ContentVariant, error) {
	headers := variantHeaderPattern.FindAllStringIndex(text, -1)
	if len(headers) == 0 {
		return nil, errors.New("generated content contains no variant blocks")
	}
	if len(headers) != expected {
		return nil, fmt.Errorf("generated content has %d variant blocks, requested %d", len(headers), expected)
	}

	variants := make([]campaign.ContentVariant, 0, expected)
	for i, header := range headers {
		start := header[1]
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		block := strings.TrimSpace(text[start:end])

		label := string(rune('A' + i))
		variant := campaign.ContentVariant{
			Label:   label,
			Channel: channels[i%len(channels)],
		}

		if first, rest, found := strings.Cut(block, "\n"); found && subjectPattern.MatchString(first) {
			variant.Subject = strings.TrimSpace(subjectPattern.ReplaceAllString(first, ""))
			block = strings.TrimSpace(rest)
		} else if !found && subjectPattern.MatchString(block) {
			return nil, fmt.Errorf("variant %s has a subject but no body text", label)
		}
		if block == "" {
			return nil, fmt.Errorf("variant %s has no body text", label)
		}
		variant.Text = block
		variant.Citations = extractCitations(block)
		variants = append(variants, variant)
	}
	return variants, nil
}

// extractCitations scans text for "[Source: <name>, Page <n>]"
// markers. The page clause is optional; duplicate source+page pairs
// collapse to one citation.
func extractCitations(text string) []campaign.Citation {
	var citations []campaign.Citation
	seen := make(map[string]bool)
	for _, match := range citationPattern.FindAllStringSubmatch(text, -1) {
		citation := campaign.Citation{Source: strings.TrimSpace(match[1])}
		if match[2] != "" {
			citation.Page, _ = strconv.Atoi(match[2])
		}
		key := fmt.Sprintf("%s\x00%d", citation.Source, citation.Page)
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, citation)
	}
	return citations
}

// --- compliance ---

type complianceStage struct {
	deps stageDeps
}

func (s *complianceStage) Name() campaign.Stage { return campaign.StageCompliance }
func (s *complianceStage) Role() string         { return campaign.StageCompliance.Role() }

func (s *complianceStage) Execute(ctx context.Context, aggregate *campaign.Campaign) (stageResult, error) {
	report, err := s.deps.gate.Check(ctx, aggregate.Variants, s.deps.clock.Now().UnixNano())
	if err != nil {
		return stageResult{}, err
	}

	var message string
	if report.Passed {
		message = fmt.Sprintf("All %d variants passed compliance review.", len(aggregate.Variants))
	} else {
		lines := make([]string, 0, len(report.Violations)+1)
		lines = append(lines, fmt.Sprintf("Compliance review rejected the content (%d violations):", len(report.Violations)))
		for i := range report.Violations {
			lines = append(lines, "- "+report.Violations[i].String())
		}
		message = strings.Join(lines, "\n")
	}

	return stageResult{
		messages: []string{message},
		mutate: func(c *campaign.Campaign) {
			c.Compliance = report
		},
		rejected: !report.Passed,
	}, nil
}

// --- experiment ---

// experimentControlLabel names the arm that keeps the current
// experience. Treatment arms carry content variant labels.
const experimentControlLabel = "control"

// defaultBaselineRate and defaultMinimumDetectableDelta parameterize
// the power calculation when sizing an experiment: an 8% baseline
// conversion rate and a 1-point absolute lift worth detecting.
const (
	defaultBaselineRate           = 0.08
	defaultMinimumDetectableDelta = 0.01
)

type experimentStage struct {
	deps        stageDeps
	allocations []int
}

func (s *experimentStage) Name() campaign.Stage { return campaign.StageExperiment }
func (s *experimentStage) Role() string         { return campaign.StageExperiment.Role() }

func (s *experimentStage) Execute(ctx context.Context, aggregate *campaign.Campaign) (stageResult, error) {
	if len(aggregate.Variants) == 0 {
		return stageResult{}, errors.New("no content variants to test")
	}

	labels := make([]string, 0, len(aggregate.Variants)+1)
	labels = append(labels, experimentControlLabel)
	for i := range aggregate.Variants {
		labels = append(labels, aggregate.Variants[i].Label)
	}

	allocations := s.allocations
	if len(allocations) == 0 {
		allocations = stats.EvenAllocation(len(labels))
	}
	if err := stats.ValidateAllocation(allocations); err != nil {
		return stageResult{}, err
	}
	windows, err := stats.AllocationWindows(labels, allocations)
	if err != nil {
		return stageResult{}, err
	}

	required, err := stats.MinimumSampleSize(defaultBaselineRate, defaultMinimumDetectableDelta,
		s.deps.experiment.ConfidenceLevel, s.deps.experiment.Power)
	if err != nil {
		return stageResult{}, err
	}
	if required < s.deps.experiment.MinimumSampleSize {
		required = s.deps.experiment.MinimumSampleSize
	}

	name := flagSafeName(aggregate.Name)
	experiment := &campaign.Experiment{
		ID:                campaign.NewExperimentID(),
		Name:              name,
		FeatureFlagID:     "experiment_" + name,
		ControlLabel:      experimentControlLabel,
		Allocations:       make([]campaign.Allocation, len(windows)),
		MinimumSampleSize: required,
		ConfidenceLevel:   s.deps.experiment.ConfidenceLevel,
	}
	arms := make([]string, len(windows))
	for i, window := range windows {
		experiment.Allocations[i] = campaign.Allocation{
			VariantLabel:   window.Variant,
			Percent:        window.To - window.From,
			FromPercentile: window.From,
			ToPercentile:   window.To,
		}
		arms[i] = fmt.Sprintf("%s %d%% [%d-%d)", window.Variant, window.To-window.From, window.From, window.To)
	}

	message := fmt.Sprintf("Experiment %s ready under feature flag %s. Traffic: %s. "+
		"Minimum sample size per arm: %d at %.0f%% confidence.",
		experiment.ID, experiment.FeatureFlagID, strings.Join(arms, ", "),
		required, experiment.ConfidenceLevel*100)

	return stageResult{
		messages: []string{message},
		mutate: func(c *campaign.Campaign) {
			c.Experiment = experiment
		},
	}, nil
}

// flagSafeName lowercases a campaign name and collapses everything
// outside [a-z0-9] into single underscores, yielding a name safe for
// feature-flag systems.
func flagSafeName(name string) string {
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range strings.ToLower(name) {
		isSafe := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isSafe {
			if pendingUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingUnderscore = false
			b.WriteRune(r)
			continue
		}
		pendingUnderscore = true
	}
	if b.Len() == 0 {
		return "campaign"
	}
	return b.String()
}

// --- scripted provider rules ---

// scriptedRules drives the pipeline without a live provider (the
// development environment and tests). Each rule keys on a phrase
// unique to one stage's system prompt; the content rule reconstructs
// the requested variant plan from the user prompt so the response
// parses like a real completion.
func scriptedRules() []llm.ScriptRule {
	planPattern := regexp.MustCompile(`(?m)^Variant ([A-Z]): (\w+)$`)

	return []llm.ScriptRule{
		{
			Match: "Strategy Lead",
			Respond: func(request llm.Request) string {
				return "Lead with the strongest customer benefit and a single clear call to action. " +
					"Keep the tone confident and concrete, repeat the offer once per message, " +
					"and use each channel for what it does best: email carries the full story, " +
					"sms and push carry the hook."
			},
		},
		{
			Match: "Data Segmenter",
			Respond: func(request llm.Request) string {
				return "age 25-40, urban, mobile-first, frequent buyers with high email engagement"
			},
		},
		{
			Match: "Content Creator",
			Respond: func(request llm.Request) string {
				var prompt string
				if len(request.Messages) > 0 {
					prompt = request.Messages[len(request.Messages)-1].Content
				}
				var blocks []string
				for _, match := range planPattern.FindAllStringSubmatch(prompt, -1) {
					label, channel := match[1], match[2]
					var block strings.Builder
					fmt.Fprintf(&block, "=== Variant %s ===\n", label)
					if channel != string(campaign.ChannelSMS) {
						fmt.Fprintf(&block, "Subject: Your %s offer is here\n", strings.ToLower(label))
					}
					fmt.Fprintf(&block, "Option %s: save 20%% this week only. "+
						"Our members see results in two weeks on average "+
						"[Source: Customer Study, Page 4]. Reply STOP to opt out.", label)
					blocks = append(blocks, block.String())
				}
				if len(blocks) == 0 {
					return "=== Variant A ===\nSubject: Your offer is here\nSave 20% this week only [Source: Customer Study, Page 4]."
				}
				return strings.Join(blocks, "\n\n")
			},
		},
	}
}
