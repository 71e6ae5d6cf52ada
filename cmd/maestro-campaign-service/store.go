// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/maestro-foundation/maestro/lib/codec"
	"github.com/maestro-foundation/maestro/lib/schema/campaign"
	"github.com/maestro-foundation/maestro/lib/sqlitepool"
)

// Store errors. Callers discriminate with errors.Is; the wrapped
// message carries the campaign or experiment ID.
var (
	// ErrNotFound means no row exists for the requested ID.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict means an Update was attempted with a stale
	// version: another writer persisted the aggregate since it was
	// read. The caller must re-read before retrying.
	ErrVersionConflict = errors.New("version conflict")
)

// storeSchema creates the campaign tables. Executed once per pool
// connection; every statement is idempotent.
//
// The aggregate column holds the full campaign document as
// zstd-compressed deterministic CBOR. aggregate_hash is the BLAKE3
// digest of the uncompressed CBOR, verified on every read so silent
// blob corruption surfaces as an error instead of a half-parsed
// campaign. The scalar columns (name, status, timestamps) duplicate
// aggregate fields so list queries never touch the blob.
//
// experiment_id is denormalized from the aggregate when the experiment
// stage completes, giving the analyze and record actions a direct
// campaign lookup.
const storeSchema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL,
	created_by     TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	version        INTEGER NOT NULL,
	experiment_id  TEXT,
	aggregate      BLOB NOT NULL,
	aggregate_hash BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status, created_at);
CREATE INDEX IF NOT EXISTS idx_campaigns_created ON campaigns(created_at);
CREATE INDEX IF NOT EXISTS idx_campaigns_experiment ON campaigns(experiment_id);

CREATE TABLE IF NOT EXISTS experiment_metrics (
	experiment_id TEXT NOT NULL,
	variant_label TEXT NOT NULL,
	impressions   INTEGER NOT NULL,
	clicks        INTEGER NOT NULL,
	conversions   INTEGER NOT NULL,
	recorded_at   INTEGER NOT NULL,
	PRIMARY KEY (experiment_id, variant_label)
);
`

// zstdEncoder and zstdDecoder are shared across all store operations.
// Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("campaign store: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("campaign store: zstd decoder initialization failed: " + err.Error())
	}
}

// Store is the SQLite-backed campaign state store. Aggregates are
// written whole: the pipeline controller owns the in-memory copy for
// the duration of a run and persists it after every mutation, so the
// store never performs partial aggregate updates. Optimistic
// versioning guards against the concurrent writer this design does not
// expect but refuses to silently tolerate.
//
// Store is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// StoreConfig holds the parameters for opening a campaign store.
type StoreConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist. ":memory:" with PoolSize 1 serves tests.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// OpenStore opens the campaign database, creating the file and schema
// if needed.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("campaign store: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, storeSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("campaign store: %w", err)
	}

	return &Store{pool: pool, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// encodeAggregate serializes an aggregate to its storage form: the
// zstd-compressed CBOR blob and the BLAKE3 digest of the uncompressed
// CBOR.
func encodeAggregate(aggregate *campaign.Campaign) (blob, hash []byte, err error) {
	plain, err := codec.Marshal(aggregate)
	if err != nil {
		return nil, nil, fmt.Errorf("campaign store: encode aggregate %s: %w", aggregate.ID, err)
	}
	digest := blake3.Sum256(plain)
	return zstdEncoder.EncodeAll(plain, nil), digest[:], nil
}

// decodeAggregate reverses encodeAggregate, verifying the stored
// digest against the decompressed bytes before parsing.
func decodeAggregate(id string, blob, storedHash []byte) (*campaign.Campaign, error) {
	plain, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("campaign store: decompress aggregate %s: %w", id, err)
	}
	digest := blake3.Sum256(plain)
	if !bytes.Equal(digest[:], storedHash) {
		return nil, fmt.Errorf("campaign store: aggregate %s failed integrity check (stored %x, computed %x)",
			id, storedHash[:8], digest[:8])
	}
	var aggregate campaign.Campaign
	if err := codec.Unmarshal(plain, &aggregate); err != nil {
		return nil, fmt.Errorf("campaign store: decode aggregate %s: %w", id, err)
	}
	return &aggregate, nil
}

// experimentColumn returns the denormalized experiment_id column value
// for an aggregate: the experiment ID once assigned, NULL before.
func experimentColumn(aggregate *campaign.Campaign) any {
	if aggregate.Experiment != nil {
		return aggregate.Experiment.ID
	}
	return nil
}

// Create inserts a freshly created aggregate. Fails when the ID
// already exists: campaign IDs are minted per request and never
// reused, so a duplicate means a caller bug, not a retry.
func (s *Store) Create(ctx context.Context, aggregate *campaign.Campaign) (err error) {
	blob, hash, err := encodeAggregate(aggregate)
	if err != nil {
		return err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("campaign store: create: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("campaign store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	exists := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM campaigns WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{aggregate.ID},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("campaign store: create %s: %w", aggregate.ID, err)
	}
	if exists {
		return fmt.Errorf("campaign store: campaign %s already exists", aggregate.ID)
	}

	err = sqlitex.Execute(conn, `INSERT INTO campaigns
		(id, name, status, created_by, created_at, updated_at, version,
		 experiment_id, aggregate, aggregate_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			aggregate.ID,
			aggregate.Name,
			string(aggregate.Status),
			aggregate.CreatedBy,
			aggregate.CreatedAt,
			aggregate.UpdatedAt,
			aggregate.Version,
			experimentColumn(aggregate),
			blob,
			hash,
		},
	})
	if err != nil {
		return fmt.Errorf("campaign store: create %s: %w", aggregate.ID, err)
	}
	return nil
}

// Update persists an aggregate under optimistic concurrency control.
// The stored version must equal expectedVersion; on success the row
// and the in-memory aggregate both advance to expectedVersion+1. A
// mismatch returns ErrVersionConflict without writing, and a missing
// row returns ErrNotFound.
func (s *Store) Update(ctx context.Context, aggregate *campaign.Campaign, expectedVersion int64) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("campaign store: update: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("campaign store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var storedVersion int64
	found := false
	err = sqlitex.Execute(conn, "SELECT version FROM campaigns WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{aggregate.ID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			storedVersion = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("campaign store: update %s: %w", aggregate.ID, err)
	}
	if !found {
		return fmt.Errorf("campaign store: update %s: %w", aggregate.ID, ErrNotFound)
	}
	if storedVersion != expectedVersion {
		return fmt.Errorf("campaign store: update %s: stored version %d, expected %d: %w",
			aggregate.ID, storedVersion, expectedVersion, ErrVersionConflict)
	}

	// The persisted blob carries the incremented version; the
	// in-memory aggregate is only advanced once the write succeeds.
	previousVersion := aggregate.Version
	aggregate.Version = expectedVersion + 1
	blob, hash, err := encodeAggregate(aggregate)
	if err != nil {
		aggregate.Version = previousVersion
		return err
	}

	err = sqlitex.Execute(conn, `UPDATE campaigns SET
		name = ?, status = ?, updated_at = ?, version = ?,
		experiment_id = ?, aggregate = ?, aggregate_hash = ?
		WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{
			aggregate.Name,
			string(aggregate.Status),
			aggregate.UpdatedAt,
			aggregate.Version,
			experimentColumn(aggregate),
			blob,
			hash,
			aggregate.ID,
		},
	})
	if err != nil {
		aggregate.Version = previousVersion
		return fmt.Errorf("campaign store: update %s: %w", aggregate.ID, err)
	}
	return nil
}

// Get returns the aggregate for a campaign ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*campaign.Campaign, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign store: get: %w", err)
	}
	defer s.pool.Put(conn)

	return s.fetchAggregate(conn, "SELECT id, aggregate, aggregate_hash FROM campaigns WHERE id = ?", id)
}

// FindByExperiment returns the aggregate owning the given experiment,
// or ErrNotFound. Only campaigns that completed the experiment stage
// have an experiment ID.
func (s *Store) FindByExperiment(ctx context.Context, experimentID string) (*campaign.Campaign, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign store: find by experiment: %w", err)
	}
	defer s.pool.Put(conn)

	return s.fetchAggregate(conn,
		"SELECT id, aggregate, aggregate_hash FROM campaigns WHERE experiment_id = ?", experimentID)
}

// fetchAggregate runs a single-row aggregate query and decodes the
// result. The query must select id, aggregate, aggregate_hash.
func (s *Store) fetchAggregate(conn *sqlite.Conn, query, key string) (*campaign.Campaign, error) {
	var id string
	var blob, hash []byte
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnText(0)
			blob = make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, blob)
			hash = make([]byte, stmt.ColumnLen(2))
			stmt.ColumnBytes(2, hash)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("campaign store: %s: %w", key, err)
	}
	if id == "" {
		return nil, fmt.Errorf("campaign store: %s: %w", key, ErrNotFound)
	}
	return decodeAggregate(id, blob, hash)
}

// defaultListLimit bounds List results when the caller does not
// specify a limit.
const defaultListLimit = 10

// List returns aggregates newest first, optionally filtered by
// status. A non-positive limit applies the default of 10.
func (s *Store) List(ctx context.Context, statusFilter campaign.Status, limit int) ([]*campaign.Campaign, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign store: list: %w", err)
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT id, aggregate, aggregate_hash FROM campaigns"
	args := []any{}
	if statusFilter != "" {
		query += " WHERE status = ?"
		args = append(args, string(statusFilter))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	type row struct {
		id   string
		blob []byte
		hash []byte
	}
	var rows []row
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r := row{id: stmt.ColumnText(0)}
			r.blob = make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, r.blob)
			r.hash = make([]byte, stmt.ColumnLen(2))
			stmt.ColumnBytes(2, r.hash)
			rows = append(rows, r)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("campaign store: list: %w", err)
	}

	aggregates := make([]*campaign.Campaign, 0, len(rows))
	for _, r := range rows {
		aggregate, err := decodeAggregate(r.id, r.blob, r.hash)
		if err != nil {
			return nil, err
		}
		aggregates = append(aggregates, aggregate)
	}
	return aggregates, nil
}

// CountByStatus returns the number of campaigns in each status.
// Statuses with no campaigns are absent from the map.
func (s *Store) CountByStatus(ctx context.Context) (map[campaign.Status]int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign store: count: %w", err)
	}
	defer s.pool.Put(conn)

	counts := make(map[campaign.Status]int64)
	err = sqlitex.Execute(conn, "SELECT status, COUNT(*) FROM campaigns GROUP BY status", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			counts[campaign.Status(stmt.ColumnText(0))] = stmt.ColumnInt64(1)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("campaign store: count: %w", err)
	}
	return counts, nil
}

// RecordMetrics upserts observed results for an experiment's arms.
// Each variant's row is replaced whole: callers report cumulative
// totals, not deltas. All rows land in one IMMEDIATE transaction.
func (s *Store) RecordMetrics(ctx context.Context, experimentID string, metrics []campaign.VariantMetrics) (err error) {
	if len(metrics) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("campaign store: record metrics: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("campaign store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i := range metrics {
		m := &metrics[i]
		err = sqlitex.Execute(conn, `INSERT INTO experiment_metrics
			(experiment_id, variant_label, impressions, clicks, conversions, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (experiment_id, variant_label) DO UPDATE SET
				impressions = excluded.impressions,
				clicks      = excluded.clicks,
				conversions = excluded.conversions,
				recorded_at = excluded.recorded_at`, &sqlitex.ExecOptions{
			Args: []any{
				experimentID,
				m.VariantLabel,
				m.Impressions,
				m.Clicks,
				m.Conversions,
				m.RecordedAt,
			},
		})
		if err != nil {
			return fmt.Errorf("campaign store: record metrics %s/%s: %w", experimentID, m.VariantLabel, err)
		}
	}
	return nil
}

// MetricsForExperiment returns the recorded metrics for an experiment
// in variant-label order. An experiment with no recorded metrics
// returns an empty slice, not an error.
func (s *Store) MetricsForExperiment(ctx context.Context, experimentID string) ([]campaign.VariantMetrics, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign store: metrics: %w", err)
	}
	defer s.pool.Put(conn)

	var metrics []campaign.VariantMetrics
	err = sqlitex.Execute(conn, `SELECT variant_label, impressions, clicks, conversions, recorded_at
		FROM experiment_metrics WHERE experiment_id = ? ORDER BY variant_label`, &sqlitex.ExecOptions{
		Args: []any{experimentID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			metrics = append(metrics, campaign.VariantMetrics{
				VariantLabel: stmt.ColumnText(0),
				Impressions:  stmt.ColumnInt64(1),
				Clicks:       stmt.ColumnInt64(2),
				Conversions:  stmt.ColumnInt64(3),
				RecordedAt:   stmt.ColumnInt64(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("campaign store: metrics %s: %w", experimentID, err)
	}
	return metrics, nil
}
