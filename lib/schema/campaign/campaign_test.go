// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

// assertField checks that a JSON object has a field with the expected value.
func assertField(t *testing.T, object map[string]any, key string, want any) {
	t.Helper()
	got, ok := object[key]
	if !ok {
		t.Errorf("field %q is missing", key)
		return
	}
	if got != want {
		t.Errorf("field %q = %v (%T), want %v (%T)", key, got, got, want, want)
	}
}

// validCampaign returns a completed Campaign with every section
// populated. Tests modify individual fields to exercise validation.
func validCampaign() Campaign {
	return Campaign{
		ID:           "camp_a3f9b2c1e7d4",
		Name:         "Spring Reactivation",
		Objective:    "Re-engage customers inactive for 60 days with a personalized offer",
		Status:       StatusCompleted,
		CreativeMode: ModeBrandVoice,
		Channels:     []Channel{ChannelEmail},
		StagesCompleted: []Stage{
			StageStrategy, StageSegmentation, StageContent, StageCompliance, StageExperiment,
		},
		Segment: &Segment{
			ID:          "seg_0011aabbccdd",
			Name:        "lapsed_purchasers",
			Description: "Customers with no purchase in the last 60 days",
			Size:        48200,
			Criteria:    "inactive 60 days, prior purchase, email reachable",
			MatchScore:  7.42,
		},
		Variants: []ContentVariant{
			{
				Label:   "A",
				Channel: ChannelEmail,
				Subject: "We saved your spot",
				Text:    "Come back and see what's new. [Source: Loyalty Playbook, Page 12]",
				Citations: []Citation{
					{Source: "Loyalty Playbook", Page: 12},
				},
			},
			{
				Label:   "B",
				Channel: ChannelEmail,
				Subject: "A little something for you",
				Text:    "Your next order ships free. [Source: Offer Catalog, Page 3]",
				Citations: []Citation{
					{Source: "Offer Catalog", Page: 3},
				},
			},
		},
		Compliance: &ComplianceReport{
			Passed:    true,
			CheckedAt: 1708523456000000000,
		},
		Experiment: &Experiment{
			ID:            "exp_ffee00112233",
			Name:          "spring_reactivation",
			FeatureFlagID: "experiment_spring_reactivation",
			ControlLabel:  "control",
			Allocations: []Allocation{
				{VariantLabel: "control", Percent: 34, FromPercentile: 0, ToPercentile: 34},
				{VariantLabel: "A", Percent: 33, FromPercentile: 34, ToPercentile: 67},
				{VariantLabel: "B", Percent: 33, FromPercentile: 67, ToPercentile: 100},
			},
			MinimumSampleSize: 12206,
			ConfidenceLevel:   0.95,
		},
		Messages: []StageMessage{
			{
				ID:        "msg_123456abcdef",
				Stage:     StageStrategy,
				Role:      "StrategyLead",
				Content:   "Target lapsed purchasers with a win-back offer across email.",
				Timestamp: 1708523450000000000,
			},
			{
				ID:        "msg_abcdef123456",
				Stage:     StageSegmentation,
				Role:      "DataSegmenter",
				Content:   "Matched segment lapsed_purchasers with 48200 recipients.",
				Timestamp: 1708523452000000000,
			},
		},
		CreatedBy: "marketing-ops",
		CreatedAt: 1708523440000000000,
		UpdatedAt: 1708523460000000000,
		Version:   7,
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	original := validCampaign()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Verify JSON field names match the wire format.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	assertField(t, raw, "id", "camp_a3f9b2c1e7d4")
	assertField(t, raw, "name", "Spring Reactivation")
	assertField(t, raw, "status", "completed")
	assertField(t, raw, "creative_mode", "brand_voice")
	assertField(t, raw, "created_by", "marketing-ops")
	assertField(t, raw, "created_at", float64(1708523440000000000))
	assertField(t, raw, "updated_at", float64(1708523460000000000))
	assertField(t, raw, "version", float64(7))

	stages, ok := raw["stages_completed"].([]any)
	if !ok {
		t.Fatalf("stages_completed is not an array: %T", raw["stages_completed"])
	}
	if len(stages) != 5 || stages[0] != "strategy" || stages[4] != "experiment" {
		t.Errorf("stages_completed = %v, want the five fixed stages in order", stages)
	}

	segment, ok := raw["segment"].(map[string]any)
	if !ok {
		t.Fatalf("segment is not an object: %T", raw["segment"])
	}
	assertField(t, segment, "id", "seg_0011aabbccdd")
	assertField(t, segment, "name", "lapsed_purchasers")
	assertField(t, segment, "size", float64(48200))
	assertField(t, segment, "match_score", 7.42)

	variants, ok := raw["content_variants"].([]any)
	if !ok {
		t.Fatalf("content_variants is not an array: %T", raw["content_variants"])
	}
	if len(variants) != 2 {
		t.Fatalf("content_variants count = %d, want 2", len(variants))
	}
	firstVariant := variants[0].(map[string]any)
	assertField(t, firstVariant, "label", "A")
	assertField(t, firstVariant, "channel", "email")
	assertField(t, firstVariant, "subject", "We saved your spot")
	citations := firstVariant["citations"].([]any)
	firstCitation := citations[0].(map[string]any)
	assertField(t, firstCitation, "source", "Loyalty Playbook")
	assertField(t, firstCitation, "page", float64(12))

	compliance, ok := raw["compliance"].(map[string]any)
	if !ok {
		t.Fatalf("compliance is not an object: %T", raw["compliance"])
	}
	assertField(t, compliance, "passed", true)
	if _, exists := compliance["violations"]; exists {
		t.Error("violations should be omitted from a passing report")
	}

	experiment, ok := raw["experiment"].(map[string]any)
	if !ok {
		t.Fatalf("experiment is not an object: %T", raw["experiment"])
	}
	assertField(t, experiment, "id", "exp_ffee00112233")
	assertField(t, experiment, "feature_flag_id", "experiment_spring_reactivation")
	assertField(t, experiment, "control_label", "control")
	assertField(t, experiment, "minimum_sample_size", float64(12206))
	allocations := experiment["allocations"].([]any)
	if len(allocations) != 3 {
		t.Fatalf("allocations count = %d, want 3", len(allocations))
	}
	controlAllocation := allocations[0].(map[string]any)
	assertField(t, controlAllocation, "variant_label", "control")
	assertField(t, controlAllocation, "percent", float64(34))
	assertField(t, controlAllocation, "from_percentile", float64(0))
	assertField(t, controlAllocation, "to_percentile", float64(34))

	messages, ok := raw["messages"].([]any)
	if !ok {
		t.Fatalf("messages is not an array: %T", raw["messages"])
	}
	if len(messages) != 2 {
		t.Fatalf("messages count = %d, want 2", len(messages))
	}
	firstMessage := messages[0].(map[string]any)
	assertField(t, firstMessage, "id", "msg_123456abcdef")
	assertField(t, firstMessage, "stage", "strategy")
	assertField(t, firstMessage, "role", "StrategyLead")
	assertField(t, firstMessage, "timestamp", float64(1708523450000000000))

	// Round-trip: marshal -> unmarshal -> compare.
	var decoded Campaign
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round-trip mismatch:\n  got:  %+v\n  want: %+v", decoded, original)
	}
}

func TestCampaignOmitsEmptyOptionals(t *testing.T) {
	minimal := Campaign{
		ID:           "camp_a3f9b2c1e7d4",
		Name:         "Spring Reactivation",
		Objective:    "Re-engage customers inactive for 60 days",
		Status:       StatusCreated,
		CreativeMode: ModeBrandVoice,
		CreatedBy:    "marketing-ops",
		CreatedAt:    1708523440000000000,
		UpdatedAt:    1708523440000000000,
		Version:      1,
	}
	if err := minimal.Validate(); err != nil {
		t.Fatalf("minimal campaign should validate: %v", err)
	}

	data, err := json.Marshal(minimal)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}

	optionalFields := []string{
		"channels", "stages_completed", "segment", "content_variants",
		"compliance", "experiment", "messages",
	}
	for _, field := range optionalFields {
		if _, exists := raw[field]; exists {
			t.Errorf("%s should be omitted when empty, but is present", field)
		}
	}

	requiredFields := []string{
		"id", "name", "objective", "status", "creative_mode",
		"created_by", "created_at", "updated_at", "version",
	}
	for _, field := range requiredFields {
		if _, exists := raw[field]; !exists {
			t.Errorf("required field %s is missing from JSON", field)
		}
	}
}

func TestCampaignValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Campaign)
		wantErr string
	}{
		{
			name:    "valid",
			modify:  func(c *Campaign) {},
			wantErr: "",
		},
		{
			name:    "invalid_id",
			modify:  func(c *Campaign) { c.ID = "campaign-1" },
			wantErr: "invalid id",
		},
		{
			name:    "name_empty",
			modify:  func(c *Campaign) { c.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "objective_empty",
			modify:  func(c *Campaign) { c.Objective = "" },
			wantErr: "objective is required",
		},
		{
			name:    "status_unknown",
			modify:  func(c *Campaign) { c.Status = "paused" },
			wantErr: `unknown status "paused"`,
		},
		{
			name:    "creative_mode_unknown",
			modify:  func(c *Campaign) { c.CreativeMode = "freestyle" },
			wantErr: `unknown creative mode "freestyle"`,
		},
		{
			name:    "channel_unknown",
			modify:  func(c *Campaign) { c.Channels = []Channel{"fax"} },
			wantErr: `unknown channel "fax"`,
		},
		{
			name: "stages_out_of_order",
			modify: func(c *Campaign) {
				c.StagesCompleted = []Stage{StageSegmentation, StageStrategy}
			},
			wantErr: "fixed order requires",
		},
		{
			name: "stages_skipped",
			modify: func(c *Campaign) {
				c.StagesCompleted = []Stage{StageStrategy, StageContent}
			},
			wantErr: "fixed order requires",
		},
		{
			name: "stages_too_many",
			modify: func(c *Campaign) {
				c.StagesCompleted = append(Stages(), StageExperiment)
			},
			wantErr: "only 5 stages exist",
		},
		{
			name: "experiment_without_compliance",
			modify: func(c *Campaign) {
				c.Compliance = nil
			},
			wantErr: "experiment requires a passing compliance report",
		},
		{
			name: "experiment_with_failed_compliance",
			modify: func(c *Campaign) {
				c.Compliance = &ComplianceReport{
					Passed:    false,
					CheckedAt: 1708523456000000000,
					Violations: []Violation{
						{VariantLabel: "A", Kind: "phrase", Phrase: "guaranteed"},
					},
				}
			},
			wantErr: "experiment requires a passing compliance report",
		},
		{
			name: "duplicate_variant_labels",
			modify: func(c *Campaign) {
				c.Variants[1].Label = "A"
			},
			wantErr: `duplicate label "A"`,
		},
		{
			name: "invalid_message",
			modify: func(c *Campaign) {
				c.Messages[0].Role = ""
			},
			wantErr: "messages[0]",
		},
		{
			name:    "created_by_empty",
			modify:  func(c *Campaign) { c.CreatedBy = "" },
			wantErr: "created_by is required",
		},
		{
			name:    "created_at_zero",
			modify:  func(c *Campaign) { c.CreatedAt = 0 },
			wantErr: "created_at is required",
		},
		{
			name:    "version_zero",
			modify:  func(c *Campaign) { c.Version = 0 },
			wantErr: "version must be >= 1",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := validCampaign()
			test.modify(&c)
			err := c.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %q, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestStagesOrderAndRoles(t *testing.T) {
	want := []struct {
		stage Stage
		role  string
	}{
		{StageStrategy, "StrategyLead"},
		{StageSegmentation, "DataSegmenter"},
		{StageContent, "ContentCreator"},
		{StageCompliance, "ComplianceOfficer"},
		{StageExperiment, "ExperimentRunner"},
	}

	stages := Stages()
	if len(stages) != len(want) {
		t.Fatalf("Stages() has %d entries, want %d", len(stages), len(want))
	}
	for i, entry := range want {
		if stages[i] != entry.stage {
			t.Errorf("Stages()[%d] = %q, want %q", i, stages[i], entry.stage)
		}
		if role := entry.stage.Role(); role != entry.role {
			t.Errorf("%s.Role() = %q, want %q", entry.stage, role, entry.role)
		}
		if status := entry.stage.Status(); status != Status(entry.stage) {
			t.Errorf("%s.Status() = %q, want %q", entry.stage, status, entry.stage)
		}
	}

	// Callers may mutate the returned slice without affecting later calls.
	stages[0] = StageExperiment
	if fresh := Stages(); fresh[0] != StageStrategy {
		t.Error("Stages() result is shared between calls")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusRejected, StatusFailed, StatusCancelled}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", status)
		}
	}
	nonTerminal := []Status{
		StatusCreated, StatusStrategy, StatusSegmentation,
		StatusContent, StatusCompliance, StatusExperiment,
	}
	for _, status := range nonTerminal {
		if status.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", status)
		}
	}
}

func TestCampaignNextStage(t *testing.T) {
	c := Campaign{}
	stage, ok := c.NextStage()
	if !ok || stage != StageStrategy {
		t.Errorf("NextStage() on fresh campaign = %q, %v, want strategy, true", stage, ok)
	}

	c.StagesCompleted = []Stage{StageStrategy, StageSegmentation}
	stage, ok = c.NextStage()
	if !ok || stage != StageContent {
		t.Errorf("NextStage() after two stages = %q, %v, want content, true", stage, ok)
	}

	c.StagesCompleted = Stages()
	if _, ok := c.NextStage(); ok {
		t.Error("NextStage() after all stages should report false")
	}
}

func TestCampaignAgentsInvolved(t *testing.T) {
	c := validCampaign()
	c.Messages = append(c.Messages, StageMessage{
		ID:        "msg_999888777666",
		Stage:     StageStrategy,
		Role:      "StrategyLead",
		Content:   "Follow-up note.",
		Timestamp: 1708523458000000000,
	})

	got := c.AgentsInvolved()
	want := []string{"StrategyLead", "DataSegmenter"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AgentsInvolved() = %v, want %v", got, want)
	}

	empty := Campaign{}
	if got := empty.AgentsInvolved(); got != nil {
		t.Errorf("AgentsInvolved() on empty campaign = %v, want nil", got)
	}
}

func TestViolationValidate(t *testing.T) {
	tests := []struct {
		name      string
		violation Violation
		wantErr   string
	}{
		{
			name:      "category_valid",
			violation: Violation{VariantLabel: "A", Kind: "category", Category: CategoryHate, Score: 5, Threshold: 2},
		},
		{
			name:      "phrase_valid",
			violation: Violation{VariantLabel: "B", Kind: "phrase", Phrase: "guaranteed results"},
		},
		{
			name:      "citation_valid",
			violation: Violation{VariantLabel: "C", Kind: "citation"},
		},
		{
			name:      "missing_variant",
			violation: Violation{Kind: "citation"},
			wantErr:   "variant_label is required",
		},
		{
			name:      "missing_kind",
			violation: Violation{VariantLabel: "A"},
			wantErr:   "kind is required",
		},
		{
			name:      "unknown_kind",
			violation: Violation{VariantLabel: "A", Kind: "tone"},
			wantErr:   `unknown kind "tone"`,
		},
		{
			name:      "category_unknown",
			violation: Violation{VariantLabel: "A", Kind: "category", Category: "spam", Score: 5, Threshold: 2},
			wantErr:   `unknown category "spam"`,
		},
		{
			name:      "category_score_out_of_range",
			violation: Violation{VariantLabel: "A", Kind: "category", Category: CategoryHate, Score: 9, Threshold: 2},
			wantErr:   "score must be 0-7",
		},
		{
			name:      "phrase_empty",
			violation: Violation{VariantLabel: "A", Kind: "phrase"},
			wantErr:   "phrase is required",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.violation.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestViolationString(t *testing.T) {
	tests := []struct {
		violation Violation
		want      string
	}{
		{
			Violation{VariantLabel: "A", Kind: "category", Category: CategoryViolence, Score: 5, Threshold: 2},
			"variant A: violence score 5 exceeds threshold 2",
		},
		{
			Violation{VariantLabel: "B", Kind: "phrase", Phrase: "act now"},
			`variant B: banned phrase "act now"`,
		},
		{
			Violation{VariantLabel: "C", Kind: "citation"},
			"variant C: no citations found",
		},
	}
	for _, test := range tests {
		if got := test.violation.String(); got != test.want {
			t.Errorf("String() = %q, want %q", got, test.want)
		}
	}
}

func TestComplianceReportValidate(t *testing.T) {
	passing := ComplianceReport{Passed: true, CheckedAt: 1708523456000000000}
	if err := passing.Validate(); err != nil {
		t.Errorf("passing report: %v", err)
	}

	failing := ComplianceReport{
		Passed:    false,
		CheckedAt: 1708523456000000000,
		Violations: []Violation{
			{VariantLabel: "A", Kind: "phrase", Phrase: "guaranteed"},
		},
	}
	if err := failing.Validate(); err != nil {
		t.Errorf("failing report: %v", err)
	}

	contradictory := ComplianceReport{
		Passed:     true,
		CheckedAt:  1708523456000000000,
		Violations: failing.Violations,
	}
	if err := contradictory.Validate(); err == nil {
		t.Error("passed report with violations should fail validation")
	}

	empty := ComplianceReport{Passed: false, CheckedAt: 1708523456000000000}
	if err := empty.Validate(); err == nil {
		t.Error("failed report without violations should fail validation")
	}
}

func TestExperimentValidate(t *testing.T) {
	valid := func() Experiment {
		return Experiment{
			ID:           "exp_ffee00112233",
			ControlLabel: "control",
			Allocations: []Allocation{
				{VariantLabel: "control", Percent: 34, FromPercentile: 0, ToPercentile: 34},
				{VariantLabel: "A", Percent: 33, FromPercentile: 34, ToPercentile: 67},
				{VariantLabel: "B", Percent: 33, FromPercentile: 67, ToPercentile: 100},
			},
			MinimumSampleSize: 1000,
			ConfidenceLevel:   0.95,
		}
	}

	tests := []struct {
		name    string
		modify  func(*Experiment)
		wantErr string
	}{
		{"valid", func(e *Experiment) {}, ""},
		{
			"invalid_id",
			func(e *Experiment) { e.ID = "experiment-1" },
			"invalid id",
		},
		{
			"no_control",
			func(e *Experiment) { e.ControlLabel = "" },
			"control_label is required",
		},
		{
			"no_allocations",
			func(e *Experiment) { e.Allocations = nil },
			"allocations are required",
		},
		{
			"allocations_under_100",
			func(e *Experiment) {
				e.Allocations = []Allocation{
					{VariantLabel: "control", Percent: 30, FromPercentile: 0, ToPercentile: 30},
					{VariantLabel: "A", Percent: 30, FromPercentile: 30, ToPercentile: 60},
					{VariantLabel: "B", Percent: 30, FromPercentile: 60, ToPercentile: 90},
				}
			},
			"sum to 90",
		},
		{
			"allocations_gap",
			func(e *Experiment) {
				e.Allocations = []Allocation{
					{VariantLabel: "control", Percent: 34, FromPercentile: 0, ToPercentile: 34},
					{VariantLabel: "A", Percent: 33, FromPercentile: 40, ToPercentile: 73},
					{VariantLabel: "B", Percent: 33, FromPercentile: 73, ToPercentile: 106},
				}
			},
			"starts at percentile 40",
		},
		{
			"allocations_not_starting_at_zero",
			func(e *Experiment) {
				e.Allocations = []Allocation{
					{VariantLabel: "control", Percent: 50, FromPercentile: 10, ToPercentile: 60},
					{VariantLabel: "A", Percent: 50, FromPercentile: 60, ToPercentile: 100},
				}
			},
			"must start at percentile 0",
		},
		{
			"confidence_out_of_range",
			func(e *Experiment) { e.ConfidenceLevel = 1.0 },
			"confidence_level must be in (0, 1)",
		},
		{
			"duplicate_metrics",
			func(e *Experiment) {
				e.Metrics = []VariantMetrics{
					{VariantLabel: "A", Impressions: 100, Conversions: 10},
					{VariantLabel: "A", Impressions: 200, Conversions: 20},
				}
			},
			`duplicate variant "A"`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := valid()
			test.modify(&e)
			err := e.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestAllocationWindowMatchesPercent(t *testing.T) {
	mismatched := Allocation{VariantLabel: "A", Percent: 33, FromPercentile: 0, ToPercentile: 40}
	if err := mismatched.Validate(); err == nil {
		t.Error("window spanning 40 points for 33 percent should fail validation")
	}

	empty := Allocation{VariantLabel: "A", Percent: 10, FromPercentile: 50, ToPercentile: 50}
	if err := empty.Validate(); err == nil {
		t.Error("empty window should fail validation")
	}
}

func TestVariantMetricsValidate(t *testing.T) {
	valid := VariantMetrics{VariantLabel: "A", Impressions: 1000, Clicks: 120, Conversions: 80}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid metrics: %v", err)
	}

	overConverted := VariantMetrics{VariantLabel: "A", Impressions: 100, Conversions: 150}
	if err := overConverted.Validate(); err == nil {
		t.Error("conversions above impressions should fail validation")
	}

	negative := VariantMetrics{VariantLabel: "A", Impressions: -1}
	if err := negative.Validate(); err == nil {
		t.Error("negative impressions should fail validation")
	}
}

func TestVariantMetricsConversionRate(t *testing.T) {
	m := VariantMetrics{VariantLabel: "A", Impressions: 10000, Conversions: 805}
	if got := m.ConversionRate(); got != 0.0805 {
		t.Errorf("ConversionRate() = %v, want 0.0805", got)
	}
	empty := VariantMetrics{VariantLabel: "A"}
	if got := empty.ConversionRate(); got != 0 {
		t.Errorf("ConversionRate() with no impressions = %v, want 0", got)
	}
}

func TestSignificanceResultValidate(t *testing.T) {
	valid := SignificanceResult{
		ControlLabel:    "control",
		ZScore:          2.282,
		PValue:          0.0225,
		ConfidenceLevel: 0.95,
		IsSignificant:   true,
		WinningVariant:  "A",
		Recommendation:  "Deploy variant A to full audience.",
		Comparisons: []VariantComparison{
			{
				VariantLabel:  "A",
				ControlRate:   0.0805,
				TreatmentRate: 0.0895,
				UpliftPercent: 11.18,
				ZScore:        2.282,
				PValue:        0.0225,
				IsSignificant: true,
			},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid result: %v", err)
	}

	winnerWithoutSignificance := valid
	winnerWithoutSignificance.IsSignificant = false
	if err := winnerWithoutSignificance.Validate(); err == nil {
		t.Error("winning variant without significance should fail validation")
	}

	badPValue := valid
	badPValue.PValue = 1.5
	if err := badPValue.Validate(); err == nil {
		t.Error("p_value above 1 should fail validation")
	}
}

func TestSegmentValidate(t *testing.T) {
	valid := Segment{ID: "seg_0011aabbccdd", Name: "lapsed_purchasers", Size: 48200}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid segment: %v", err)
	}

	noName := Segment{ID: "seg_0011aabbccdd"}
	if err := noName.Validate(); err == nil {
		t.Error("segment without name should fail validation")
	}

	negativeSize := Segment{ID: "seg_0011aabbccdd", Name: "x", Size: -1}
	if err := negativeSize.Validate(); err == nil {
		t.Error("negative size should fail validation")
	}
}

func TestContentVariantValidate(t *testing.T) {
	valid := ContentVariant{Label: "A", Channel: ChannelSMS, Text: "Short and sweet."}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid variant: %v", err)
	}

	noChannel := ContentVariant{Label: "A", Text: "body"}
	if err := noChannel.Validate(); err == nil {
		t.Error("variant without channel should fail validation")
	}

	noText := ContentVariant{Label: "A", Channel: ChannelEmail}
	if err := noText.Validate(); err == nil {
		t.Error("variant without text should fail validation")
	}

	badCitation := ContentVariant{
		Label:     "A",
		Channel:   ChannelEmail,
		Text:      "body",
		Citations: []Citation{{Source: ""}},
	}
	if err := badCitation.Validate(); err == nil {
		t.Error("citation without source should fail validation")
	}
}

func TestStageMessageValidate(t *testing.T) {
	valid := StageMessage{
		ID:        "msg_123456abcdef",
		Stage:     StageContent,
		Role:      "ContentCreator",
		Content:   "=== Variant A ===",
		Timestamp: 1708523450000000000,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid message: %v", err)
	}

	badID := valid
	badID.ID = "message-1"
	if err := badID.Validate(); err == nil {
		t.Error("malformed message ID should fail validation")
	}

	badStage := valid
	badStage.Stage = "review"
	if err := badStage.Validate(); err == nil {
		t.Error("unknown stage should fail validation")
	}

	noTimestamp := valid
	noTimestamp.Timestamp = 0
	if err := noTimestamp.Validate(); err == nil {
		t.Error("zero timestamp should fail validation")
	}
}
