// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pgvector implements a VectorStore on PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS gleaner_collections (
	name        TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	dimension   INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS gleaner_documents (
	collection TEXT NOT NULL REFERENCES gleaner_collections(name) ON DELETE CASCADE,
	doc_id     BIGINT NOT NULL,
	text       TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	embedding  vector NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, doc_id)
);
`

// VectorStore keeps collections and documents in two tables and searches
// with the pgvector cosine distance operator.
type VectorStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
	now      func() time.Time
	logger   *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// Option configures a VectorStore.
type Option func(*VectorStore) error

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *VectorStore) error {
		s.logger = logger
		return nil
	}
}

// New wraps an existing pool and creates the schema if needed.
func New(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*VectorStore, error) {
	s := &VectorStore{
		pool:   pool,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "pgvector-store")
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Connect opens a pool for dsn. Close releases it.
func Connect(ctx context.Context, dsn string, opts ...Option) (*VectorStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s, err := New(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.ownsPool = true
	return s, nil
}

// EnsureCollection inserts the collection row if missing.
func (s *VectorStore) EnsureCollection(ctx context.Context, name string, hint core.SchemaHint) error {
	if err := storage.ValidateCollectionName(name); err != nil {
		return err
	}
	now := s.now().UTC()
	var dimension int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO gleaner_collections (name, description, dimension, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE
			SET dimension = CASE WHEN gleaner_collections.dimension = 0 THEN EXCLUDED.dimension ELSE gleaner_collections.dimension END
		RETURNING dimension`,
		name, hint.Description, hint.Dimension, now,
	).Scan(&dimension)
	if err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", name, err)
	}
	if hint.Dimension > 0 && dimension != hint.Dimension {
		return fmt.Errorf("%w: collection %s has %d, got %d", storage.ErrDimensionMismatch, name, dimension, hint.Dimension)
	}
	return nil
}

// Upsert writes all records in one transaction.
func (s *VectorStore) Upsert(ctx context.Context, collection string, records []*core.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var dimension int
		err := tx.QueryRow(ctx, `SELECT dimension FROM gleaner_collections WHERE name = $1 FOR UPDATE`, collection).Scan(&dimension)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("collection %s: %w", collection, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if dimension == 0 {
			dimension = len(records[0].Vector)
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			if len(rec.Vector) != dimension {
				return fmt.Errorf("%w: record %d has %d, collection %s has %d",
					storage.ErrDimensionMismatch, rec.DocID, len(rec.Vector), collection, dimension)
			}
			metadata := rec.Metadata
			if metadata == nil {
				metadata = map[string]string{}
			}
			batch.Queue(`
				INSERT INTO gleaner_documents (collection, doc_id, text, metadata, embedding, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (collection, doc_id) DO UPDATE
					SET text = EXCLUDED.text, metadata = EXCLUDED.metadata,
					    embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at`,
				collection, int64(rec.DocID), rec.Text, metadata, pgvector.NewVector(rec.Vector), now,
			)
		}
		batch.Queue(`UPDATE gleaner_collections SET dimension = $2, updated_at = $3 WHERE name = $1`, collection, dimension, now)

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Search orders by cosine distance; the score is 1 - distance.
func (s *VectorStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]*core.ScoredRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gleaner_collections WHERE name = $1)`, collection).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", collection, storage.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT doc_id, text, metadata, updated_at, 1 - (embedding <=> $2) AS score
		FROM gleaner_documents
		WHERE collection = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		collection, pgvector.NewVector(vector), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	defer rows.Close()

	var results []*core.ScoredRecord
	for rows.Next() {
		var (
			docID    int64
			rec      core.VectorRecord
			score    float64
			metadata map[string]string
		)
		if err := rows.Scan(&docID, &rec.Text, &metadata, &rec.UpdatedAt, &score); err != nil {
			return nil, err
		}
		rec.DocID = core.ID(uint64(docID))
		rec.Metadata = metadata
		results = append(results, &core.ScoredRecord{Record: &rec, Score: float32(score)})
	}
	return results, rows.Err()
}

// ListCollections returns every collection with its document count.
func (s *VectorStore) ListCollections(ctx context.Context) ([]core.CollectionInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.name, c.description, COUNT(d.doc_id)
		FROM gleaner_collections c
		LEFT JOIN gleaner_documents d ON d.collection = c.name
		GROUP BY c.name, c.description
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var infos []core.CollectionInfo
	for rows.Next() {
		var (
			info  core.CollectionInfo
			count int64
		)
		if err := rows.Scan(&info.Name, &info.Description, &count); err != nil {
			return nil, err
		}
		info.DocumentCount = int(count)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// CollectionStats returns ErrNotFound for an unknown collection.
func (s *VectorStore) CollectionStats(ctx context.Context, name string) (*core.CollectionStats, error) {
	var (
		stats core.CollectionStats
		count int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT c.name, c.dimension, c.updated_at, (SELECT COUNT(*) FROM gleaner_documents d WHERE d.collection = c.name)
		FROM gleaner_collections c
		WHERE c.name = $1`, name,
	).Scan(&stats.Name, &stats.Dimension, &stats.LastUpdated, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	stats.TotalCount = int(count)
	return &stats, nil
}

// DeleteCollection removes the collection; documents go with it via ON DELETE CASCADE.
func (s *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gleaner_collections WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("deleted collection", "collection", name)
	}
	return nil
}

// Ping checks the database connection.
func (s *VectorStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool when the store opened it.
func (s *VectorStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
