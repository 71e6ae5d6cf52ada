// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(StoreConfig{
		Path:     filepath.Join(t.TempDir(), "campaigns.db"),
		PoolSize: 2,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func testAggregate(createdAt int64) *campaign.Campaign {
	return &campaign.Campaign{
		ID:           campaign.NewCampaignID(),
		Name:         "Spring Launch",
		Objective:    "Drive signups for the spring product launch",
		Status:       campaign.StatusCreated,
		CreativeMode: campaign.ModeBrandVoice,
		Channels:     []campaign.Channel{campaign.ChannelEmail},
		CreatedBy:    "system",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		Version:      1,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	aggregate := testAggregate(1000)
	aggregate.Messages = []campaign.StageMessage{
		{ID: campaign.NewMessageID(), Stage: campaign.StageStrategy, Role: "StrategyLead", Content: "Plan drafted.", Timestamp: 1001},
	}
	if err := store.Create(ctx, aggregate); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, aggregate.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != aggregate.ID || got.Name != aggregate.Name || got.Objective != aggregate.Objective {
		t.Errorf("identity fields round-trip: got %+v", got)
	}
	if got.Status != campaign.StatusCreated {
		t.Errorf("Status = %q, want %q", got.Status, campaign.StatusCreated)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "Plan drafted." {
		t.Errorf("Messages = %+v, want the single stored message", got.Messages)
	}
}

func TestStoreCreateDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	aggregate := testAggregate(1000)
	if err := store.Create(ctx, aggregate); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := store.Create(ctx, aggregate)
	if err == nil {
		t.Fatal("duplicate Create succeeded, want error")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("duplicate Create error = %v, want mention of already exists", err)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), campaign.NewCampaignID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestStoreUpdateAdvancesVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	aggregate := testAggregate(1000)
	if err := store.Create(ctx, aggregate); err != nil {
		t.Fatalf("Create: %v", err)
	}

	aggregate.Status = campaign.StatusStrategy
	aggregate.UpdatedAt = 2000
	if err := store.Update(ctx, aggregate, 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if aggregate.Version != 2 {
		t.Errorf("in-memory Version = %d, want 2 after successful update", aggregate.Version)
	}

	got, err := store.Get(ctx, aggregate.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("stored Version = %d, want 2", got.Version)
	}
	if got.Status != campaign.StatusStrategy {
		t.Errorf("stored Status = %q, want %q", got.Status, campaign.StatusStrategy)
	}
	if got.UpdatedAt != 2000 {
		t.Errorf("stored UpdatedAt = %d, want 2000", got.UpdatedAt)
	}
}

func TestStoreUpdateVersionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	aggregate := testAggregate(1000)
	if err := store.Create(ctx, aggregate); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Update(ctx, aggregate, 1); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	// A stale writer still holding version 1 must be rejected without
	// touching the row or its in-memory copy.
	stale := testAggregate(1000)
	stale.ID = aggregate.ID
	stale.Status = campaign.StatusFailed
	err := store.Update(ctx, stale, 1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale Update = %v, want ErrVersionConflict", err)
	}
	if stale.Version != 1 {
		t.Errorf("rejected aggregate Version = %d, want 1 (unchanged)", stale.Version)
	}

	got, err := store.Get(ctx, aggregate.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status == campaign.StatusFailed {
		t.Error("rejected update modified the stored aggregate")
	}
	if got.Version != 2 {
		t.Errorf("stored Version = %d, want 2", got.Version)
	}
}

func TestStoreUpdateNotFound(t *testing.T) {
	store := newTestStore(t)

	aggregate := testAggregate(1000)
	err := store.Update(context.Background(), aggregate, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update unknown = %v, want ErrNotFound", err)
	}
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		aggregate := testAggregate(int64(1000 + i))
		if i == 2 {
			aggregate.Status = campaign.StatusCompleted
		}
		if err := store.Create(ctx, aggregate); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		ids = append(ids, aggregate.ID)
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d campaigns, want 3", len(all))
	}
	// Newest first.
	if all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("List order = [%s %s %s], want newest first", all[0].ID, all[1].ID, all[2].ID)
	}

	completed, err := store.List(ctx, campaign.StatusCompleted, 0)
	if err != nil {
		t.Fatalf("List completed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != ids[2] {
		t.Errorf("List completed = %+v, want only %s", completed, ids[2])
	}

	limited, err := store.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List with limit 2 returned %d campaigns", len(limited))
	}
}

func TestStoreListDefaultLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < defaultListLimit+2; i++ {
		if err := store.Create(ctx, testAggregate(int64(1000+i))); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != defaultListLimit {
		t.Errorf("List with no limit returned %d campaigns, want %d", len(all), defaultListLimit)
	}
}

func TestStoreCountByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	statuses := []campaign.Status{
		campaign.StatusCreated,
		campaign.StatusCompleted,
		campaign.StatusCompleted,
		campaign.StatusFailed,
	}
	for i, status := range statuses {
		aggregate := testAggregate(int64(1000 + i))
		aggregate.Status = status
		if err := store.Create(ctx, aggregate); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[campaign.StatusCreated] != 1 {
		t.Errorf("created count = %d, want 1", counts[campaign.StatusCreated])
	}
	if counts[campaign.StatusCompleted] != 2 {
		t.Errorf("completed count = %d, want 2", counts[campaign.StatusCompleted])
	}
	if counts[campaign.StatusFailed] != 1 {
		t.Errorf("failed count = %d, want 1", counts[campaign.StatusFailed])
	}
	if _, ok := counts[campaign.StatusCancelled]; ok {
		t.Error("CountByStatus reported a status with no campaigns")
	}
}

func TestStoreRecordMetricsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	experimentID := campaign.NewExperimentID()

	first := []campaign.VariantMetrics{
		{VariantLabel: "control", Impressions: 1000, Clicks: 80, Conversions: 20, RecordedAt: 5000},
		{VariantLabel: "variant-a", Impressions: 1000, Clicks: 95, Conversions: 31, RecordedAt: 5000},
	}
	if err := store.RecordMetrics(ctx, experimentID, first); err != nil {
		t.Fatalf("RecordMetrics: %v", err)
	}

	// Re-recording replaces cumulative totals.
	second := []campaign.VariantMetrics{
		{VariantLabel: "variant-a", Impressions: 2000, Clicks: 190, Conversions: 64, RecordedAt: 6000},
	}
	if err := store.RecordMetrics(ctx, experimentID, second); err != nil {
		t.Fatalf("RecordMetrics update: %v", err)
	}

	metrics, err := store.MetricsForExperiment(ctx, experimentID)
	if err != nil {
		t.Fatalf("MetricsForExperiment: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metric rows, want 2", len(metrics))
	}
	if metrics[0].VariantLabel != "control" || metrics[0].Conversions != 20 {
		t.Errorf("control row = %+v", metrics[0])
	}
	if metrics[1].VariantLabel != "variant-a" || metrics[1].Impressions != 2000 || metrics[1].RecordedAt != 6000 {
		t.Errorf("variant-a row not replaced: %+v", metrics[1])
	}
}

func TestStoreMetricsForUnknownExperiment(t *testing.T) {
	store := newTestStore(t)

	metrics, err := store.MetricsForExperiment(context.Background(), campaign.NewExperimentID())
	if err != nil {
		t.Fatalf("MetricsForExperiment: %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("got %d metric rows for unknown experiment, want 0", len(metrics))
	}
}

func TestStoreFindByExperiment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	aggregate := testAggregate(1000)
	aggregate.Experiment = &campaign.Experiment{
		ID:           campaign.NewExperimentID(),
		Name:         "Spring Launch experiment",
		ControlLabel: "control",
	}
	if err := store.Create(ctx, aggregate); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.FindByExperiment(ctx, aggregate.Experiment.ID)
	if err != nil {
		t.Fatalf("FindByExperiment: %v", err)
	}
	if got.ID != aggregate.ID {
		t.Errorf("FindByExperiment returned campaign %s, want %s", got.ID, aggregate.ID)
	}

	_, err = store.FindByExperiment(ctx, campaign.NewExperimentID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByExperiment unknown = %v, want ErrNotFound", err)
	}
}

func TestStoreDetectsCorruptAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	aggregate := testAggregate(1000)
	if err := store.Create(ctx, aggregate); err != nil {
		t.Fatalf("Create: %v", err)
	}

	conn, err := store.pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	err = sqlitex.ExecuteTransient(conn, "UPDATE campaigns SET aggregate_hash = zeroblob(32) WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{aggregate.ID}})
	store.pool.Put(conn)
	if err != nil {
		t.Fatalf("corrupt hash: %v", err)
	}

	_, err = store.Get(ctx, aggregate.ID)
	if err == nil {
		t.Fatal("Get returned a corrupt aggregate without error")
	}
	if !strings.Contains(err.Error(), "integrity check") {
		t.Errorf("Get error = %v, want integrity check failure", err)
	}
}
