// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/maestro-foundation/maestro/lib/redact"
	"github.com/maestro-foundation/maestro/lib/stats"
)

// CreativeMode selects how adventurous the content stage's generation
// is. Each mode maps to a fixed sampling temperature; the mode is
// chosen per campaign, not per variant.
type CreativeMode string

const (
	// ModePrecision is near-deterministic output for compliance-
	// sensitive copy (regulated industries, legal-reviewed claims).
	ModePrecision CreativeMode = "precision"

	// ModeBrandVoice is lightly adaptive on-brand copy. The default.
	ModeBrandVoice CreativeMode = "brand_voice"

	// ModeAdaptiveCreative is trend-aware copy for routine campaign
	// testing.
	ModeAdaptiveCreative CreativeMode = "adaptive_creative"

	// ModeHighVariance is bold exploration for candidate discovery.
	ModeHighVariance CreativeMode = "high_variance"

	// ModeDivergentIdeation is maximal divergence, intended for
	// internal ideation rather than customer-facing sends.
	ModeDivergentIdeation CreativeMode = "divergent_ideation"
)

// DefaultCreativeMode is applied when a create request omits the mode.
const DefaultCreativeMode = ModeBrandVoice

// IsValidCreativeMode reports whether the given string is a recognized
// creative mode.
func IsValidCreativeMode(mode CreativeMode) bool {
	switch mode {
	case ModePrecision, ModeBrandVoice, ModeAdaptiveCreative, ModeHighVariance, ModeDivergentIdeation:
		return true
	}
	return false
}

// Temperature returns the sampling temperature for this mode. Unknown
// modes fall back to the default mode's temperature.
func (m CreativeMode) Temperature() float64 {
	switch m {
	case ModePrecision:
		return 0.1
	case ModeBrandVoice:
		return 0.5
	case ModeAdaptiveCreative:
		return 0.8
	case ModeHighVariance:
		return 1.1
	case ModeDivergentIdeation:
		return 1.4
	}
	return DefaultCreativeMode.Temperature()
}

// Channel is a delivery channel for generated content. The channel
// constrains copy length and structure: SMS bodies stay under ~160
// characters, push bodies stay short and punchy, email may run one or
// two short paragraphs with a subject line.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// DefaultChannels is applied when a create request omits channels.
var DefaultChannels = []Channel{ChannelEmail}

// IsValidChannel reports whether the given string is a recognized
// delivery channel.
func IsValidChannel(channel Channel) bool {
	switch channel {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Variant count bounds for a create request. Labels are assigned
// A, B, C, ... in generation order.
const (
	DefaultVariantCount = 3
	MaxVariantCount     = 5
)

// namePattern restricts campaign names to letters, digits, spaces,
// hyphens, and underscores. Names feed into experiment and feature
// flag identifiers, so shell- and URL-hostile characters are rejected
// up front.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)

// MaxObjectiveLength bounds the objective text. Objectives are
// embedded into every stage prompt; anything longer is a document,
// not an objective.
const MaxObjectiveLength = 2000

// CreateRequest is a caller's request to run a campaign. Validation
// happens synchronously before any aggregate exists: a request that
// fails Validate is rejected without creating state or opening a
// stream.
type CreateRequest struct {
	// Name is the campaign name. 3-100 characters of letters,
	// digits, spaces, hyphens, and underscores.
	Name string `json:"name"`

	// Objective is what the campaign should achieve, in plain
	// language (e.g., "Re-engage customers inactive for 60 days").
	// At most MaxObjectiveLength characters. Rejected when it
	// matches known prompt-injection patterns, since it is embedded
	// verbatim into stage prompts.
	Objective string `json:"objective"`

	// CreatedBy identifies the requesting principal. Defaults to
	// "system" when empty.
	CreatedBy string `json:"created_by,omitempty"`

	// CreativeMode selects the generation temperature. Empty means
	// DefaultCreativeMode.
	CreativeMode CreativeMode `json:"creative_mode,omitempty"`

	// Channels are the delivery channels to generate content for.
	// Empty means DefaultChannels.
	Channels []Channel `json:"channels,omitempty"`

	// VariantCount is the number of content variants to generate.
	// Zero means DefaultVariantCount; at most MaxVariantCount.
	VariantCount int `json:"variant_count,omitempty"`

	// Allocations overrides the even traffic split for the
	// experiment stage. When set, it must have one entry per arm
	// (control first, then each variant) of positive integers
	// summing to exactly 100. Empty means an even split.
	Allocations []int `json:"allocations,omitempty"`
}

// Validate checks the request. All failures here are validation
// errors: the caller gets a synchronous rejection and no campaign is
// created.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("campaign request: name is required")
	}
	if len(r.Name) < 3 {
		return errors.New("campaign request: name must be at least 3 characters")
	}
	if len(r.Name) > 100 {
		return errors.New("campaign request: name must be at most 100 characters")
	}
	if !namePattern.MatchString(r.Name) {
		return errors.New("campaign request: name may only contain letters, digits, spaces, hyphens, and underscores")
	}
	if r.Objective == "" {
		return errors.New("campaign request: objective is required")
	}
	if len(r.Objective) > MaxObjectiveLength {
		return fmt.Errorf("campaign request: objective must be at most %d characters, got %d", MaxObjectiveLength, len(r.Objective))
	}
	if redact.DetectInjection(r.Objective) {
		return errors.New("campaign request: objective matches a prompt injection pattern")
	}
	if r.CreativeMode != "" && !IsValidCreativeMode(r.CreativeMode) {
		return fmt.Errorf("campaign request: unknown creative mode %q", r.CreativeMode)
	}
	for i, channel := range r.Channels {
		if !IsValidChannel(channel) {
			return fmt.Errorf("campaign request: channels[%d]: unknown channel %q", i, channel)
		}
	}
	if r.VariantCount < 0 || r.VariantCount > MaxVariantCount {
		return fmt.Errorf("campaign request: variant_count must be 1-%d, got %d", MaxVariantCount, r.VariantCount)
	}
	if len(r.Allocations) > 0 {
		arms := r.EffectiveVariantCount() + 1
		if len(r.Allocations) != arms {
			return fmt.Errorf("campaign request: allocations must cover control plus %d variants (%d entries), got %d",
				r.EffectiveVariantCount(), arms, len(r.Allocations))
		}
		if err := stats.ValidateAllocation(r.Allocations); err != nil {
			return fmt.Errorf("campaign request: allocations: %w", err)
		}
	}
	return nil
}

// EffectiveVariantCount returns VariantCount with the default applied.
func (r *CreateRequest) EffectiveVariantCount() int {
	if r.VariantCount == 0 {
		return DefaultVariantCount
	}
	return r.VariantCount
}

// EffectiveCreativeMode returns CreativeMode with the default applied.
func (r *CreateRequest) EffectiveCreativeMode() CreativeMode {
	if r.CreativeMode == "" {
		return DefaultCreativeMode
	}
	return r.CreativeMode
}

// EffectiveChannels returns Channels with the default applied. The
// returned slice is freshly allocated.
func (r *CreateRequest) EffectiveChannels() []Channel {
	if len(r.Channels) == 0 {
		return append([]Channel(nil), DefaultChannels...)
	}
	return append([]Channel(nil), r.Channels...)
}

// EffectiveCreatedBy returns CreatedBy with the default applied.
func (r *CreateRequest) EffectiveCreatedBy() string {
	if r.CreatedBy == "" {
		return "system"
	}
	return r.CreatedBy
}
