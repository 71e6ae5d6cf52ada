// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maestro-foundation/maestro/lib/bm25"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// defaultProfileName and defaultProfileSize describe the audience used
// when the catalog is empty or no entry matches the derived criteria.
// The profile is deterministic so repeated runs of the same campaign
// target the same audience.
const (
	defaultProfileName        = "general_audience"
	defaultProfileDescription = "All reachable recipients across configured channels."
	defaultProfileSize        = 50000
)

// catalogEntry is one audience segment in the YAML catalog file.
type catalogEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Size        int64  `yaml:"size"`
	Criteria    string `yaml:"criteria"`
}

// SegmentCatalog holds the configured audience segments and a BM25
// index over their text for criteria matching. Immutable after load;
// safe for concurrent use.
type SegmentCatalog struct {
	entries map[string]catalogEntry
	index   *bm25.Index
}

// LoadSegmentCatalog reads the YAML segment catalog. An empty path or
// a missing file yields an empty catalog, in which case every campaign
// gets the default profile.
func LoadSegmentCatalog(path string) (*SegmentCatalog, error) {
	if path == "" {
		return newSegmentCatalog(nil)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return newSegmentCatalog(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("segment catalog: reading %s: %w", path, err)
	}

	var file struct {
		Segments []catalogEntry `yaml:"segments"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("segment catalog: parsing %s: %w", path, err)
	}

	catalog, err := newSegmentCatalog(file.Segments)
	if err != nil {
		return nil, fmt.Errorf("segment catalog: %s: %w", path, err)
	}
	return catalog, nil
}

func newSegmentCatalog(entries []catalogEntry) (*SegmentCatalog, error) {
	catalog := &SegmentCatalog{entries: make(map[string]catalogEntry, len(entries))}

	documents := make([]bm25.Document, 0, len(entries))
	for i, entry := range entries {
		if entry.Name == "" {
			return nil, fmt.Errorf("segment %d: name is required", i)
		}
		if _, exists := catalog.entries[entry.Name]; exists {
			return nil, fmt.Errorf("segment %d: duplicate name %q", i, entry.Name)
		}
		if entry.Size < 0 {
			return nil, fmt.Errorf("segment %s: size must be >= 0, got %d", entry.Name, entry.Size)
		}
		catalog.entries[entry.Name] = entry

		// Name and criteria dominate ranking; the free-form
		// description is a tiebreaker.
		documents = append(documents, bm25.Document{
			Name: entry.Name,
			Fields: []bm25.Field{
				{Text: entry.Name, Weight: 3},
				{Text: entry.Criteria, Weight: 2},
				{Text: entry.Description, Weight: 1},
			},
		})
	}

	catalog.index = bm25.New(documents)
	return catalog, nil
}

// Len returns the number of catalog entries.
func (c *SegmentCatalog) Len() int {
	return len(c.entries)
}

// Match ranks the catalog against the derived targeting criteria and
// returns the winning entry as a Segment, with the retrieval score
// attached. When the catalog is empty or nothing matches, the default
// profile is returned with a zero match score. The criteria text is
// recorded on the segment either way.
func (c *SegmentCatalog) Match(criteria string) campaign.Segment {
	results := c.index.Search(criteria, 1)
	if len(results) == 0 {
		return campaign.Segment{
			ID:          campaign.NewSegmentID(),
			Name:        defaultProfileName,
			Description: defaultProfileDescription,
			Size:        defaultProfileSize,
			Criteria:    criteria,
		}
	}

	entry := c.entries[results[0].Name]
	return campaign.Segment{
		ID:          campaign.NewSegmentID(),
		Name:        entry.Name,
		Description: entry.Description,
		Size:        entry.Size,
		Criteria:    criteria,
		MatchScore:  results[0].Score,
	}
}
