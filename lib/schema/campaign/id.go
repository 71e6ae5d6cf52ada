// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Identifier prefixes. Every Maestro identifier is a prefix, an
// underscore, and 12 lowercase hex characters drawn from a random
// UUID. The prefix makes IDs self-describing in logs and API payloads.
const (
	CampaignIDPrefix   = "camp"
	SegmentIDPrefix    = "seg"
	MessageIDPrefix    = "msg"
	ExperimentIDPrefix = "exp"
)

// idHexLength is the number of hex characters after the prefix.
const idHexLength = 12

// newID returns prefix + "_" + 12 hex characters from a fresh random
// UUID. 48 bits of entropy: collisions are not a practical concern at
// campaign-service volumes, and the store's primary key constraint
// catches the astronomically unlucky case.
func newID(prefix string) string {
	id := uuid.New()
	return prefix + "_" + hex.EncodeToString(id[:idHexLength/2])
}

// NewCampaignID returns a fresh campaign identifier.
func NewCampaignID() string { return newID(CampaignIDPrefix) }

// NewSegmentID returns a fresh segment identifier.
func NewSegmentID() string { return newID(SegmentIDPrefix) }

// NewMessageID returns a fresh message identifier.
func NewMessageID() string { return newID(MessageIDPrefix) }

// NewExperimentID returns a fresh experiment identifier.
func NewExperimentID() string { return newID(ExperimentIDPrefix) }

// isID reports whether s is prefix + "_" + exactly 12 lowercase hex
// characters.
func isID(prefix, s string) bool {
	if len(s) != len(prefix)+1+idHexLength {
		return false
	}
	if s[:len(prefix)] != prefix || s[len(prefix)] != '_' {
		return false
	}
	for _, c := range s[len(prefix)+1:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IsCampaignID reports whether s is a well-formed campaign identifier.
// Service handlers check this before touching the store so malformed
// input fails as validation, not as a lookup miss.
func IsCampaignID(s string) bool { return isID(CampaignIDPrefix, s) }

// IsSegmentID reports whether s is a well-formed segment identifier.
func IsSegmentID(s string) bool { return isID(SegmentIDPrefix, s) }

// IsMessageID reports whether s is a well-formed message identifier.
func IsMessageID(s string) bool { return isID(MessageIDPrefix, s) }

// IsExperimentID reports whether s is a well-formed experiment
// identifier.
func IsExperimentID(s string) bool { return isID(ExperimentIDPrefix, s) }
