// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a campaign run. The non-terminal
// values name the stage currently executing; the terminal values name
// the outcome. Transitions are strictly forward and driven only by the
// pipeline controller:
//
//	created → strategy → segmentation → content → compliance → experiment → completed
//
// with "rejected" reachable only from the compliance stage, and
// "failed"/"cancelled" reachable from any non-terminal state. No state
// is ever revisited.
type Status string

const (
	// StatusCreated is the initial state: the aggregate exists and is
	// persisted, but no stage has started.
	StatusCreated Status = "created"

	// StatusStrategy through StatusExperiment mean the named stage is
	// currently executing (or about to execute after a retry).
	StatusStrategy     Status = "strategy"
	StatusSegmentation Status = "segmentation"
	StatusContent      Status = "content"
	StatusCompliance   Status = "compliance"
	StatusExperiment   Status = "experiment"

	// StatusCompleted is the successful terminal state: all five
	// stages ran, the compliance gate passed, and the experiment
	// configuration is attached.
	StatusCompleted Status = "completed"

	// StatusRejected is the terminal state reached when the
	// compliance gate fails. This is a valid business outcome, not an
	// error: the aggregate carries the full violation list so the
	// caller can revise and resubmit.
	StatusRejected Status = "rejected"

	// StatusFailed is the terminal state reached when a stage
	// exhausts its retry budget or persistence fails. The aggregate
	// as accumulated so far is preserved for audit.
	StatusFailed Status = "failed"

	// StatusCancelled is the terminal state reached through
	// cooperative cancellation. All messages and fields collected
	// before the cancellation point are preserved.
	StatusCancelled Status = "cancelled"
)

// validStatuses is the set of recognized campaign statuses.
var validStatuses = map[Status]bool{
	StatusCreated:      true,
	StatusStrategy:     true,
	StatusSegmentation: true,
	StatusContent:      true,
	StatusCompliance:   true,
	StatusExperiment:   true,
	StatusCompleted:    true,
	StatusRejected:     true,
	StatusFailed:       true,
	StatusCancelled:    true,
}

// IsValidStatus reports whether the given string is a recognized
// campaign status.
func IsValidStatus(status Status) bool {
	return validStatuses[status]
}

// IsTerminal reports whether this status ends the run. A terminal
// aggregate is immutable: the controller never writes to it again and
// the store is the sole source of truth for reads.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Stage identifies one of the five fixed processing steps in a
// campaign run. The order is fixed by the domain and known at compile
// time; there is no runtime stage registry.
type Stage string

const (
	StageStrategy     Stage = "strategy"
	StageSegmentation Stage = "segmentation"
	StageContent      Stage = "content"
	StageCompliance   Stage = "compliance"
	StageExperiment   Stage = "experiment"
)

// Stages returns the fixed execution order. Callers receive a fresh
// slice on every call and may modify it freely.
func Stages() []Stage {
	return []Stage{
		StageStrategy,
		StageSegmentation,
		StageContent,
		StageCompliance,
		StageExperiment,
	}
}

// IsValidStage reports whether the given string is a recognized stage.
func IsValidStage(stage Stage) bool {
	switch stage {
	case StageStrategy, StageSegmentation, StageContent, StageCompliance, StageExperiment:
		return true
	}
	return false
}

// Role returns the agent role name that speaks for this stage in
// messages and stream events (e.g., "StrategyLead"). Empty for
// unrecognized stages.
func (s Stage) Role() string {
	switch s {
	case StageStrategy:
		return "StrategyLead"
	case StageSegmentation:
		return "DataSegmenter"
	case StageContent:
		return "ContentCreator"
	case StageCompliance:
		return "ComplianceOfficer"
	case StageExperiment:
		return "ExperimentRunner"
	}
	return ""
}

// Status returns the in-flight campaign status for this stage. The
// controller sets the aggregate's status to this value immediately
// before invoking the stage.
func (s Stage) Status() Status {
	return Status(s)
}

// Category is a content-safety scoring dimension. The scorer rates
// each variant 0-7 per category; the compliance gate compares scores
// against configured thresholds (smaller threshold = stricter).
type Category string

const (
	CategoryHate     Category = "hate"
	CategoryViolence Category = "violence"
	CategorySexual   Category = "sexual"
	CategorySelfHarm Category = "self_harm"
)

// Categories returns all safety categories in display order.
func Categories() []Category {
	return []Category{CategoryHate, CategoryViolence, CategorySexual, CategorySelfHarm}
}

// IsValidCategory reports whether the given string is a recognized
// safety category.
func IsValidCategory(category Category) bool {
	switch category {
	case CategoryHate, CategoryViolence, CategorySexual, CategorySelfHarm:
		return true
	}
	return false
}

// MaxCategoryScore is the upper bound of the scorer's severity scale.
// Scores and thresholds are integers in [0, MaxCategoryScore].
const MaxCategoryScore = 7

// Campaign is the aggregate for one campaign run: the single document
// that accumulates every stage's output from creation to a terminal
// status. The pipeline controller owns the in-memory copy exclusively
// for the duration of a run; the state store owns the durable copy and
// serves all reads once the run ends.
//
// Serialized as CBOR in the store and on the socket wire, as JSON on
// the HTTP surface (both via the json tags).
type Campaign struct {
	// ID is the campaign identifier ("camp_" + 12 hex). Assigned at
	// creation, never changes.
	ID string `json:"id"`

	// Name is the human-readable campaign name. 3-100 characters of
	// letters, digits, spaces, hyphens, and underscores (validated on
	// the create request before the aggregate exists).
	Name string `json:"name"`

	// Objective is the campaign goal the strategy stage plans
	// against. Free text, at most 2000 characters.
	Objective string `json:"objective"`

	// Status is the lifecycle state. Mutated only by the controller;
	// immutable once terminal.
	Status Status `json:"status"`

	// CreativeMode selects the content stage's generation temperature
	// (see CreativeMode). Defaults to brand_voice when the request
	// omits it.
	CreativeMode CreativeMode `json:"creative_mode"`

	// Channels are the delivery channels content is generated for.
	// Defaults to email when the request omits them.
	Channels []Channel `json:"channels,omitempty"`

	// StagesCompleted lists the stages that have finished, in
	// execution order. Invariant: always a prefix of Stages(). A
	// stage appears here only after its output is merged into the
	// aggregate and persisted.
	StagesCompleted []Stage `json:"stages_completed,omitempty"`

	// Segment is the audience selected by the segmentation stage.
	// Nil until that stage completes.
	Segment *Segment `json:"segment,omitempty"`

	// Variants are the generated content variants, in label order
	// (A, B, C, ...). Empty until the content stage completes.
	Variants []ContentVariant `json:"content_variants,omitempty"`

	// Compliance is the gate verdict for Variants. Nil until the
	// compliance stage runs. When Passed is false the run terminates
	// as rejected and Violations enumerates every failing condition
	// across every variant.
	Compliance *ComplianceReport `json:"compliance,omitempty"`

	// Experiment is the A/B/n configuration produced by the
	// experiment stage. Invariant: non-nil only when Compliance is
	// non-nil and Compliance.Passed is true.
	Experiment *Experiment `json:"experiment,omitempty"`

	// Messages is the append-only transcript of agent output across
	// all stages, in production order. Never shrinks or reorders:
	// retries discard a failed attempt's output before anything is
	// appended, so each message appears exactly once.
	Messages []StageMessage `json:"messages,omitempty"`

	// CreatedBy identifies the requesting principal.
	CreatedBy string `json:"created_by"`

	// CreatedAt is when the aggregate was created, as Unix
	// nanoseconds.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is when the aggregate was last persisted, as Unix
	// nanoseconds.
	UpdatedAt int64 `json:"updated_at"`

	// Version is the optimistic-concurrency counter, starting at 1
	// and incremented by the store on every successful update. The
	// controller always updates with the version it last read or
	// wrote; a mismatch means a concurrent writer and aborts the run
	// rather than overwriting unseen state.
	Version int64 `json:"version"`
}

// Validate checks structural consistency: required fields, recognized
// enum values, the stage-prefix invariant, and the compliance/
// experiment ordering invariant. Recursively validates the segment,
// variants, compliance report, experiment, and messages.
func (c *Campaign) Validate() error {
	if !IsCampaignID(c.ID) {
		return fmt.Errorf("campaign: invalid id %q", c.ID)
	}
	if c.Name == "" {
		return errors.New("campaign: name is required")
	}
	if c.Objective == "" {
		return errors.New("campaign: objective is required")
	}
	if !IsValidStatus(c.Status) {
		return fmt.Errorf("campaign: unknown status %q", c.Status)
	}
	if !IsValidCreativeMode(c.CreativeMode) {
		return fmt.Errorf("campaign: unknown creative mode %q", c.CreativeMode)
	}
	for i, channel := range c.Channels {
		if !IsValidChannel(channel) {
			return fmt.Errorf("campaign: channels[%d]: unknown channel %q", i, channel)
		}
	}
	order := Stages()
	if len(c.StagesCompleted) > len(order) {
		return fmt.Errorf("campaign: stages_completed has %d entries, only %d stages exist", len(c.StagesCompleted), len(order))
	}
	for i, stage := range c.StagesCompleted {
		if stage != order[i] {
			return fmt.Errorf("campaign: stages_completed[%d] is %q, fixed order requires %q", i, stage, order[i])
		}
	}
	if c.Segment != nil {
		if err := c.Segment.Validate(); err != nil {
			return fmt.Errorf("campaign: segment: %w", err)
		}
	}
	seen := make(map[string]bool, len(c.Variants))
	for i := range c.Variants {
		if err := c.Variants[i].Validate(); err != nil {
			return fmt.Errorf("campaign: content_variants[%d]: %w", i, err)
		}
		if seen[c.Variants[i].Label] {
			return fmt.Errorf("campaign: content_variants[%d]: duplicate label %q", i, c.Variants[i].Label)
		}
		seen[c.Variants[i].Label] = true
	}
	if c.Compliance != nil {
		if err := c.Compliance.Validate(); err != nil {
			return fmt.Errorf("campaign: compliance: %w", err)
		}
	}
	if c.Experiment != nil {
		if c.Compliance == nil || !c.Compliance.Passed {
			return errors.New("campaign: experiment requires a passing compliance report")
		}
		if err := c.Experiment.Validate(); err != nil {
			return fmt.Errorf("campaign: experiment: %w", err)
		}
	}
	for i := range c.Messages {
		if err := c.Messages[i].Validate(); err != nil {
			return fmt.Errorf("campaign: messages[%d]: %w", i, err)
		}
	}
	if c.CreatedBy == "" {
		return errors.New("campaign: created_by is required")
	}
	if c.CreatedAt <= 0 {
		return errors.New("campaign: created_at is required")
	}
	if c.UpdatedAt <= 0 {
		return errors.New("campaign: updated_at is required")
	}
	if c.Version < 1 {
		return fmt.Errorf("campaign: version must be >= 1, got %d", c.Version)
	}
	return nil
}

// NextStage returns the first stage not yet in StagesCompleted, or
// false when all stages have run. Assumes the prefix invariant holds.
func (c *Campaign) NextStage() (Stage, bool) {
	order := Stages()
	if len(c.StagesCompleted) >= len(order) {
		return "", false
	}
	return order[len(c.StagesCompleted)], true
}

// AgentsInvolved returns the distinct agent roles that produced
// messages, in first-appearance order. Used in the completed stream
// event and CLI summaries.
func (c *Campaign) AgentsInvolved() []string {
	var roles []string
	seen := make(map[string]bool)
	for i := range c.Messages {
		role := c.Messages[i].Role
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}
	return roles
}

// Segment is the audience selected by the segmentation stage: a
// matched entry from the configured audience catalog, or the default
// profile when the catalog has no match.
type Segment struct {
	// ID is the segment identifier ("seg_" + 12 hex for catalog
	// entries minted by this service).
	ID string `json:"id"`

	// Name is the catalog entry name (e.g., "young_professionals").
	Name string `json:"name"`

	// Description summarizes who is in this segment.
	Description string `json:"description,omitempty"`

	// Size is the estimated audience size in recipients.
	Size int64 `json:"size"`

	// Criteria is the targeting criteria text the segmentation stage
	// derived from the objective and matched against the catalog.
	Criteria string `json:"criteria,omitempty"`

	// MatchScore is the retrieval score of the winning catalog entry
	// for Criteria. Zero for the default profile.
	MatchScore float64 `json:"match_score,omitempty"`
}

// Validate checks that the segment identifies a concrete audience.
func (s *Segment) Validate() error {
	if s.ID == "" {
		return errors.New("segment: id is required")
	}
	if s.Name == "" {
		return errors.New("segment: name is required")
	}
	if s.Size < 0 {
		return fmt.Errorf("segment: size must be >= 0, got %d", s.Size)
	}
	if s.MatchScore < 0 {
		return fmt.Errorf("segment: match_score must be >= 0, got %v", s.MatchScore)
	}
	return nil
}

// ContentVariant is one generated message candidate: a treatment arm
// in the experiment. Labels are single letters assigned in generation
// order (A, B, C, ...).
type ContentVariant struct {
	// Label is the variant letter ("A", "B", ...). Unique within a
	// campaign.
	Label string `json:"label"`

	// Channel is the delivery channel this copy was written for. The
	// channel constrains length and tone during generation.
	Channel Channel `json:"channel"`

	// Subject is the subject line or title. Set for channels that
	// support one (email, push); empty for SMS.
	Subject string `json:"subject,omitempty"`

	// Text is the message body, with inline citation markers in the
	// form "[Source: <name>, Page <n>]".
	Text string `json:"text"`

	// Citations are the structured citations extracted from Text.
	Citations []Citation `json:"citations,omitempty"`
}

// Validate checks that the variant is a complete message candidate.
func (v *ContentVariant) Validate() error {
	if v.Label == "" {
		return errors.New("variant: label is required")
	}
	if !IsValidChannel(v.Channel) {
		return fmt.Errorf("variant %s: unknown channel %q", v.Label, v.Channel)
	}
	if v.Text == "" {
		return fmt.Errorf("variant %s: text is required", v.Label)
	}
	for i := range v.Citations {
		if err := v.Citations[i].Validate(); err != nil {
			return fmt.Errorf("variant %s: citations[%d]: %w", v.Label, i, err)
		}
	}
	return nil
}

// Citation is a structured grounding reference extracted from a
// variant's inline "[Source: <name>, Page <n>]" markers.
type Citation struct {
	// Source is the document or dataset the claim is grounded in.
	Source string `json:"source"`

	// Page is the page or positional index within the source. Zero
	// when the marker carries no page.
	Page int `json:"page,omitempty"`

	// Excerpt is the supporting snippet, when available.
	Excerpt string `json:"excerpt,omitempty"`
}

// Validate checks that the citation names its source.
func (c *Citation) Validate() error {
	if c.Source == "" {
		return errors.New("citation: source is required")
	}
	if c.Page < 0 {
		return fmt.Errorf("citation: page must be >= 0, got %d", c.Page)
	}
	return nil
}

// ComplianceReport is the compliance gate's verdict over all content
// variants. The gate evaluates every variant against every configured
// check and enumerates every failure; it never stops at the first.
type ComplianceReport struct {
	// Passed is true only if every variant passed every check.
	Passed bool `json:"passed"`

	// Violations lists each failing condition across all variants.
	// Empty when Passed is true.
	Violations []Violation `json:"violations,omitempty"`

	// CheckedAt is when the gate ran, as Unix nanoseconds.
	CheckedAt int64 `json:"checked_at"`
}

// Validate checks internal consistency: a passing report carries no
// violations, a failing report carries at least one.
func (r *ComplianceReport) Validate() error {
	if r.Passed && len(r.Violations) > 0 {
		return errors.New("compliance report: passed with violations")
	}
	if !r.Passed && len(r.Violations) == 0 {
		return errors.New("compliance report: failed without violations")
	}
	for i := range r.Violations {
		if err := r.Violations[i].Validate(); err != nil {
			return fmt.Errorf("compliance report: violations[%d]: %w", i, err)
		}
	}
	if r.CheckedAt <= 0 {
		return errors.New("compliance report: checked_at is required")
	}
	return nil
}

// Violation is one failing compliance condition on one variant. Kind
// determines which type-specific fields are set:
//
//   - "category": a safety score exceeded its threshold. Category,
//     Score, and Threshold are set.
//   - "phrase": the variant text contains a banned phrase
//     (case-insensitive substring). Phrase is set.
//   - "citation": the policy requires citations and the variant text
//     contains no citation marker. No type-specific fields.
type Violation struct {
	// VariantLabel identifies the failing variant.
	VariantLabel string `json:"variant_label"`

	// Kind is "category", "phrase", or "citation".
	Kind string `json:"kind"`

	// Category is the safety category that scored too high (kind
	// "category").
	Category Category `json:"category,omitempty"`

	// Score is the scorer's severity for Category (kind "category").
	Score int `json:"score,omitempty"`

	// Threshold is the configured limit Score exceeded (kind
	// "category").
	Threshold int `json:"threshold,omitempty"`

	// Phrase is the banned phrase found in the variant text (kind
	// "phrase").
	Phrase string `json:"phrase,omitempty"`
}

// Validate checks that the violation has a valid kind and the
// type-specific fields required for its kind.
func (v *Violation) Validate() error {
	if v.VariantLabel == "" {
		return errors.New("violation: variant_label is required")
	}
	switch v.Kind {
	case "category":
		if !IsValidCategory(v.Category) {
			return fmt.Errorf("violation (variant %s): unknown category %q", v.VariantLabel, v.Category)
		}
		if v.Score < 0 || v.Score > MaxCategoryScore {
			return fmt.Errorf("violation (variant %s): score must be 0-%d, got %d", v.VariantLabel, MaxCategoryScore, v.Score)
		}
		if v.Threshold < 0 || v.Threshold > MaxCategoryScore {
			return fmt.Errorf("violation (variant %s): threshold must be 0-%d, got %d", v.VariantLabel, MaxCategoryScore, v.Threshold)
		}
	case "phrase":
		if v.Phrase == "" {
			return fmt.Errorf("violation (variant %s): phrase is required for phrase violations", v.VariantLabel)
		}
	case "citation":
		// No type-specific fields.
	case "":
		return fmt.Errorf("violation (variant %s): kind is required", v.VariantLabel)
	default:
		return fmt.Errorf("violation (variant %s): unknown kind %q", v.VariantLabel, v.Kind)
	}
	return nil
}

// String renders the violation for listings and rejection summaries.
func (v *Violation) String() string {
	switch v.Kind {
	case "category":
		return fmt.Sprintf("variant %s: %s score %d exceeds threshold %d", v.VariantLabel, v.Category, v.Score, v.Threshold)
	case "phrase":
		return fmt.Sprintf("variant %s: banned phrase %q", v.VariantLabel, v.Phrase)
	case "citation":
		return fmt.Sprintf("variant %s: no citations found", v.VariantLabel)
	}
	return fmt.Sprintf("variant %s: %s", v.VariantLabel, v.Kind)
}

// Experiment is the A/B/n test configuration produced by the
// experiment stage, plus any results recorded after launch. The
// control arm receives the original (un-generated) experience;
// treatment arms map one-to-one to content variants.
type Experiment struct {
	// ID is the experiment identifier ("exp_" + 12 hex).
	ID string `json:"id"`

	// Name is the feature-flag-safe experiment name derived from the
	// campaign name.
	Name string `json:"name,omitempty"`

	// FeatureFlagID is the identifier under which the allocation is
	// published to the flag delivery system ("experiment_" + Name).
	FeatureFlagID string `json:"feature_flag_id,omitempty"`

	// ControlLabel names the control arm (by convention "control").
	ControlLabel string `json:"control_label"`

	// Allocations assigns each arm a traffic percentage and its
	// percentile window. Percentages are positive integers summing to
	// exactly 100; windows are contiguous, covering [0, 100).
	Allocations []Allocation `json:"allocations"`

	// MinimumSampleSize is the per-arm sample size required before
	// significance analysis is meaningful: the larger of the
	// power-formula result and the configured floor.
	MinimumSampleSize int `json:"minimum_sample_size"`

	// ConfidenceLevel is the significance test's confidence level,
	// e.g. 0.95.
	ConfidenceLevel float64 `json:"confidence_level"`

	// Metrics are the per-arm observations recorded after launch via
	// the experiment record API. Empty until results arrive.
	Metrics []VariantMetrics `json:"metrics,omitempty"`

	// Result is the significance analysis over Metrics. Nil until
	// computed. Recomputed on demand when new metrics arrive.
	Result *SignificanceResult `json:"result,omitempty"`
}

// Validate checks the experiment configuration, including that the
// allocation percentages sum to exactly 100 and their percentile
// windows tile [0, 100) contiguously.
func (e *Experiment) Validate() error {
	if !IsExperimentID(e.ID) {
		return fmt.Errorf("experiment: invalid id %q", e.ID)
	}
	if e.ControlLabel == "" {
		return errors.New("experiment: control_label is required")
	}
	if len(e.Allocations) == 0 {
		return errors.New("experiment: allocations are required")
	}
	sum := 0
	for i := range e.Allocations {
		if err := e.Allocations[i].Validate(); err != nil {
			return fmt.Errorf("experiment: allocations[%d]: %w", i, err)
		}
		sum += e.Allocations[i].Percent
		if i == 0 && e.Allocations[i].FromPercentile != 0 {
			return fmt.Errorf("experiment: allocations[0] must start at percentile 0, got %d", e.Allocations[i].FromPercentile)
		}
		if i > 0 && e.Allocations[i].FromPercentile != e.Allocations[i-1].ToPercentile {
			return fmt.Errorf("experiment: allocations[%d] starts at percentile %d, previous ends at %d",
				i, e.Allocations[i].FromPercentile, e.Allocations[i-1].ToPercentile)
		}
	}
	if sum != 100 {
		return fmt.Errorf("experiment: allocations sum to %d, must sum to exactly 100", sum)
	}
	if last := e.Allocations[len(e.Allocations)-1].ToPercentile; last != 100 {
		return fmt.Errorf("experiment: allocations must end at percentile 100, got %d", last)
	}
	if e.MinimumSampleSize < 0 {
		return fmt.Errorf("experiment: minimum_sample_size must be >= 0, got %d", e.MinimumSampleSize)
	}
	if e.ConfidenceLevel <= 0 || e.ConfidenceLevel >= 1 {
		return fmt.Errorf("experiment: confidence_level must be in (0, 1), got %v", e.ConfidenceLevel)
	}
	seen := make(map[string]bool, len(e.Metrics))
	for i := range e.Metrics {
		if err := e.Metrics[i].Validate(); err != nil {
			return fmt.Errorf("experiment: metrics[%d]: %w", i, err)
		}
		if seen[e.Metrics[i].VariantLabel] {
			return fmt.Errorf("experiment: metrics[%d]: duplicate variant %q", i, e.Metrics[i].VariantLabel)
		}
		seen[e.Metrics[i].VariantLabel] = true
	}
	if e.Result != nil {
		if err := e.Result.Validate(); err != nil {
			return fmt.Errorf("experiment: result: %w", err)
		}
	}
	return nil
}

// Allocation assigns one experiment arm a traffic percentage and its
// percentile window. A recipient hashed into [FromPercentile,
// ToPercentile) receives this arm's experience.
type Allocation struct {
	// VariantLabel is the arm this allocation serves: the control
	// label or a content variant label.
	VariantLabel string `json:"variant_label"`

	// Percent is the traffic share, a positive integer.
	Percent int `json:"percent"`

	// FromPercentile is the window's inclusive lower bound.
	FromPercentile int `json:"from_percentile"`

	// ToPercentile is the window's exclusive upper bound.
	ToPercentile int `json:"to_percentile"`
}

// Validate checks the allocation's percentage and window bounds.
// Cross-allocation constraints (contiguity, sum) are checked by
// Experiment.Validate.
func (a *Allocation) Validate() error {
	if a.VariantLabel == "" {
		return errors.New("allocation: variant_label is required")
	}
	if a.Percent <= 0 || a.Percent > 100 {
		return fmt.Errorf("allocation %s: percent must be 1-100, got %d", a.VariantLabel, a.Percent)
	}
	if a.FromPercentile < 0 || a.FromPercentile > 100 {
		return fmt.Errorf("allocation %s: from_percentile must be 0-100, got %d", a.VariantLabel, a.FromPercentile)
	}
	if a.ToPercentile < 0 || a.ToPercentile > 100 {
		return fmt.Errorf("allocation %s: to_percentile must be 0-100, got %d", a.VariantLabel, a.ToPercentile)
	}
	if a.ToPercentile <= a.FromPercentile {
		return fmt.Errorf("allocation %s: window [%d, %d) is empty", a.VariantLabel, a.FromPercentile, a.ToPercentile)
	}
	if a.ToPercentile-a.FromPercentile != a.Percent {
		return fmt.Errorf("allocation %s: window [%d, %d) does not span %d percent",
			a.VariantLabel, a.FromPercentile, a.ToPercentile, a.Percent)
	}
	return nil
}

// VariantMetrics is one arm's observed results, recorded after launch.
// Conversion rate is Conversions/Impressions.
type VariantMetrics struct {
	// VariantLabel is the arm these observations belong to.
	VariantLabel string `json:"variant_label"`

	// Impressions is the number of recipients who received this
	// arm's experience (the visits denominator for significance).
	Impressions int64 `json:"impressions"`

	// Clicks is the number of recipients who engaged.
	Clicks int64 `json:"clicks"`

	// Conversions is the number of recipients who completed the
	// campaign objective.
	Conversions int64 `json:"conversions"`

	// RecordedAt is when these values were last updated, as Unix
	// nanoseconds.
	RecordedAt int64 `json:"recorded_at,omitempty"`
}

// Validate checks that the counts are coherent: non-negative, with
// clicks and conversions bounded by impressions.
func (m *VariantMetrics) Validate() error {
	if m.VariantLabel == "" {
		return errors.New("metrics: variant_label is required")
	}
	if m.Impressions < 0 {
		return fmt.Errorf("metrics %s: impressions must be >= 0, got %d", m.VariantLabel, m.Impressions)
	}
	if m.Clicks < 0 || m.Clicks > m.Impressions {
		return fmt.Errorf("metrics %s: clicks must be 0-%d, got %d", m.VariantLabel, m.Impressions, m.Clicks)
	}
	if m.Conversions < 0 || m.Conversions > m.Impressions {
		return fmt.Errorf("metrics %s: conversions must be 0-%d, got %d", m.VariantLabel, m.Impressions, m.Conversions)
	}
	return nil
}

// ConversionRate returns Conversions/Impressions, or 0 when no
// impressions are recorded.
func (m *VariantMetrics) ConversionRate() float64 {
	if m.Impressions == 0 {
		return 0
	}
	return float64(m.Conversions) / float64(m.Impressions)
}

// SignificanceResult is the stored outcome of a two-proportion
// significance analysis over an experiment's metrics. The top-level
// z-score and p-value describe the headline comparison: the winning
// treatment against control when one exists, otherwise the treatment
// closest to significance. Comparisons carries the per-treatment
// detail.
type SignificanceResult struct {
	// ControlLabel names the baseline arm all treatments were
	// compared against.
	ControlLabel string `json:"control_label"`

	// ZScore is the headline comparison's test statistic.
	ZScore float64 `json:"z_score"`

	// PValue is the headline comparison's p-value, in [0, 1].
	PValue float64 `json:"p_value"`

	// ConfidenceLevel is the confidence level the test ran at, in
	// (0, 1).
	ConfidenceLevel float64 `json:"confidence_level"`

	// IsSignificant reports whether the headline comparison rejected
	// the null hypothesis at ConfidenceLevel.
	IsSignificant bool `json:"is_significant"`

	// WinningVariant is the treatment with the highest conversion
	// rate among those significantly better than control. Empty when
	// no treatment is significant.
	WinningVariant string `json:"winning_variant,omitempty"`

	// Recommendation is the human-readable deployment guidance.
	Recommendation string `json:"recommendation"`

	// Comparisons holds each treatment-vs-control test, in treatment
	// order.
	Comparisons []VariantComparison `json:"comparisons,omitempty"`

	// AnalyzedAt is when the analysis ran, as Unix nanoseconds.
	AnalyzedAt int64 `json:"analyzed_at,omitempty"`
}

// Validate checks the result's ranges and that a declared winner is
// backed by a significant comparison.
func (r *SignificanceResult) Validate() error {
	if r.ControlLabel == "" {
		return errors.New("significance result: control_label is required")
	}
	if r.PValue < 0 || r.PValue > 1 {
		return fmt.Errorf("significance result: p_value must be in [0, 1], got %v", r.PValue)
	}
	if r.ConfidenceLevel <= 0 || r.ConfidenceLevel >= 1 {
		return fmt.Errorf("significance result: confidence_level must be in (0, 1), got %v", r.ConfidenceLevel)
	}
	if r.WinningVariant != "" && !r.IsSignificant {
		return errors.New("significance result: winning_variant set without significance")
	}
	if r.Recommendation == "" {
		return errors.New("significance result: recommendation is required")
	}
	for i := range r.Comparisons {
		if err := r.Comparisons[i].Validate(); err != nil {
			return fmt.Errorf("significance result: comparisons[%d]: %w", i, err)
		}
	}
	return nil
}

// VariantComparison is one treatment-vs-control test inside a
// SignificanceResult.
type VariantComparison struct {
	// VariantLabel is the treatment arm.
	VariantLabel string `json:"variant_label"`

	// ControlRate and TreatmentRate are the observed conversion
	// rates.
	ControlRate   float64 `json:"control_rate"`
	TreatmentRate float64 `json:"treatment_rate"`

	// UpliftPercent is the relative rate change,
	// (treatment-control)/control as a percentage. Negative for a
	// decline.
	UpliftPercent float64 `json:"uplift_percent"`

	// ZScore and PValue are the two-proportion test outputs for this
	// pair.
	ZScore float64 `json:"z_score"`
	PValue float64 `json:"p_value"`

	// IsSignificant reports whether PValue beat the configured
	// significance level.
	IsSignificant bool `json:"is_significant"`

	// ConfidenceLow and ConfidenceHigh bound the rate difference at
	// the configured confidence level.
	ConfidenceLow  float64 `json:"confidence_low"`
	ConfidenceHigh float64 `json:"confidence_high"`
}

// Validate checks the comparison's ranges.
func (c *VariantComparison) Validate() error {
	if c.VariantLabel == "" {
		return errors.New("comparison: variant_label is required")
	}
	if c.PValue < 0 || c.PValue > 1 {
		return fmt.Errorf("comparison %s: p_value must be in [0, 1], got %v", c.VariantLabel, c.PValue)
	}
	if c.ControlRate < 0 || c.ControlRate > 1 {
		return fmt.Errorf("comparison %s: control_rate must be in [0, 1], got %v", c.VariantLabel, c.ControlRate)
	}
	if c.TreatmentRate < 0 || c.TreatmentRate > 1 {
		return fmt.Errorf("comparison %s: treatment_rate must be in [0, 1], got %v", c.VariantLabel, c.TreatmentRate)
	}
	return nil
}

// StageMessage is one agent utterance in the campaign transcript.
// Messages are appended in production order and never edited: a stage
// that produces N messages yields N entries, each also streamed as its
// own agent_message event.
type StageMessage struct {
	// ID is the message identifier ("msg_" + 12 hex). Assigned when
	// the message is appended to the aggregate.
	ID string `json:"id"`

	// Stage is the stage that produced this message.
	Stage Stage `json:"stage"`

	// Role is the agent role that spoke (Stage.Role()).
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the message was appended, as Unix
	// nanoseconds.
	Timestamp int64 `json:"timestamp"`
}

// Validate checks that all required fields are present.
func (m *StageMessage) Validate() error {
	if !IsMessageID(m.ID) {
		return fmt.Errorf("message: invalid id %q", m.ID)
	}
	if !IsValidStage(m.Stage) {
		return fmt.Errorf("message %s: unknown stage %q", m.ID, m.Stage)
	}
	if m.Role == "" {
		return fmt.Errorf("message %s: role is required", m.ID)
	}
	if m.Content == "" {
		return fmt.Errorf("message %s: content is required", m.ID)
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("message %s: timestamp is required", m.ID)
	}
	return nil
}
