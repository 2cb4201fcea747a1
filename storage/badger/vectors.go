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

package badger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
)

// upsertTxnSize bounds the number of records written per transaction so
// large ingests stay under badger's transaction size limit.
const upsertTxnSize = 500

// VectorStore implements storage.VectorStore with an exhaustive scan over
// the records of one collection. It suits local use and tests; pgvector is
// the option for large corpora.
type VectorStore struct {
	backend *Backend
	ownsDB  bool
	now     func() time.Time
	logger  *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// VectorStoreOption configures a VectorStore.
type VectorStoreOption func(*VectorStore) error

// WithVectorLogger sets a custom logger for the store.
func WithVectorLogger(logger *slog.Logger) VectorStoreOption {
	return func(s *VectorStore) error {
		s.logger = logger
		return nil
	}
}

// WithOwnedVectorBackend makes Close also close the backend.
func WithOwnedVectorBackend() VectorStoreOption {
	return func(s *VectorStore) error {
		s.ownsDB = true
		return nil
	}
}

// NewVectorStore creates a VectorStore on top of an open backend.
func NewVectorStore(backend *Backend, opts ...VectorStoreOption) (*VectorStore, error) {
	s := &VectorStore{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "badger-vector-store")
	return s, nil
}

// EnsureCollection creates the collection metadata if missing. An existing
// collection without a dimension adopts the hinted one.
func (s *VectorStore) EnsureCollection(ctx context.Context, name string, hint core.SchemaHint) error {
	if err := storage.ValidateCollectionName(name); err != nil {
		return err
	}
	created := false
	err := s.backend.Update(func(tx *badger.Txn) error {
		c, err := readCollection(tx, name)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		switch {
		case c == nil:
			c = &core.Collection{
				Name:        name,
				Description: hint.Description,
				Dimension:   hint.Dimension,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			created = true
		case c.Dimension == 0 && hint.Dimension > 0:
			c.Dimension = hint.Dimension
		case hint.Dimension > 0 && c.Dimension != hint.Dimension:
			return fmt.Errorf("%w: collection %s has %d, got %d", storage.ErrDimensionMismatch, name, c.Dimension, hint.Dimension)
		default:
			return nil
		}
		return tx.Set(makeCollectionKey(name), storage.MarshalCollection(c))
	})
	if err == nil && created {
		s.logger.Info("created collection", "collection", name, "dimension", hint.Dimension)
	}
	return err
}

// Upsert writes records keyed by DocID, replacing existing ones.
func (s *VectorStore) Upsert(ctx context.Context, collection string, records []*core.VectorRecord) (int, error) {
	if err := storage.ValidateCollectionName(collection); err != nil {
		return 0, err
	}
	written := 0
	for start := 0; start < len(records); start += upsertTxnSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		batch := records[start:min(start+upsertTxnSize, len(records))]
		err := s.backend.Update(func(tx *badger.Txn) error {
			c, err := readCollection(tx, collection)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("collection %s: %w", collection, storage.ErrNotFound)
			}
			now := s.now().UTC()
			for _, rec := range batch {
				if c.Dimension > 0 && len(rec.Vector) != c.Dimension {
					return fmt.Errorf("%w: record %d has %d, collection %s has %d",
						storage.ErrDimensionMismatch, rec.DocID, len(rec.Vector), collection, c.Dimension)
				}
				stored := *rec
				stored.UpdatedAt = now
				if err := tx.Set(makeRecordKey(collection, rec.DocID), storage.MarshalVectorRecord(&stored)); err != nil {
					return err
				}
			}
			if c.Dimension == 0 && len(batch) > 0 {
				c.Dimension = len(batch[0].Vector)
			}
			c.UpdatedAt = now
			return tx.Set(makeCollectionKey(collection), storage.MarshalCollection(c))
		})
		if err != nil {
			return written, err
		}
		written += len(batch)
	}
	return written, nil
}

// Search scores every record in the collection by cosine similarity.
func (s *VectorStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]*core.ScoredRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	var results []*core.ScoredRecord
	err := s.backend.View(func(tx *badger.Txn) error {
		c, err := readCollection(tx, collection)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("collection %s: %w", collection, storage.ErrNotFound)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var rec *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(rec.Vector) == 0 {
				continue
			}
			results = append(results, &core.ScoredRecord{
				Record: rec,
				Score:  core.CosineSimilarity(vector, rec.Vector),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.ScoredRecord) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListCollections returns every collection sorted by name.
func (s *VectorStore) ListCollections(ctx context.Context) ([]core.CollectionInfo, error) {
	var infos []core.CollectionInfo
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collectionPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var c *core.Collection
			err := iter.Item().Value(func(val []byte) error {
				var err error
				c, err = storage.UnmarshalCollection(val)
				return err
			})
			if err != nil {
				return err
			}
			infos = append(infos, core.CollectionInfo{
				Name:          c.Name,
				Description:   c.Description,
				DocumentCount: countRecords(tx, c.Name),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(infos, func(a, b core.CollectionInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos, nil
}

// CollectionStats returns the record count, dimension and last write time.
func (s *VectorStore) CollectionStats(ctx context.Context, name string) (*core.CollectionStats, error) {
	var stats *core.CollectionStats
	err := s.backend.View(func(tx *badger.Txn) error {
		c, err := readCollection(tx, name)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("collection %s: %w", name, storage.ErrNotFound)
		}
		stats = &core.CollectionStats{
			Name:        c.Name,
			TotalCount:  countRecords(tx, name),
			Dimension:   c.Dimension,
			LastUpdated: c.UpdatedAt,
		}
		return nil
	})
	return stats, err
}

// DeleteCollection drops the metadata and every record of the collection.
func (s *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	if err := storage.ValidateCollectionName(name); err != nil {
		return err
	}
	existed := false
	err := s.backend.Update(func(tx *badger.Txn) error {
		c, err := readCollection(tx, name)
		if err != nil || c == nil {
			return err
		}
		existed = true
		return tx.Delete(makeCollectionKey(name))
	})
	if err != nil {
		return err
	}
	if err := s.backend.DropPrefix(makeRecordPrefix(name)); err != nil {
		return err
	}
	if existed {
		s.logger.Info("deleted collection", "collection", name)
	}
	return nil
}

// Ping reports whether the database is open.
func (s *VectorStore) Ping(ctx context.Context) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// Close closes the backend when the store owns it.
func (s *VectorStore) Close() error {
	if s.ownsDB {
		return s.backend.Close()
	}
	return nil
}

func readCollection(tx *badger.Txn, name string) (*core.Collection, error) {
	val, err := readValue(tx, makeCollectionKey(name))
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalCollection(val)
}

// countRecords counts keys only, without fetching values.
func countRecords(tx *badger.Txn, collection string) int {
	prefix := makeRecordPrefix(collection)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	n := 0
	for iter.Rewind(); iter.Valid() && bytes.HasPrefix(iter.Item().Key(), prefix); iter.Next() {
		n++
	}
	return n
}
