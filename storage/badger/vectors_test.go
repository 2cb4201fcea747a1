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
	"context"
	"testing"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	_, vectors, backend, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return vectors
}

func record(source string, idx int, text string, vec ...float32) *core.VectorRecord {
	return &core.VectorRecord{
		DocID:    core.ChunkID(source, idx, text),
		Vector:   vec,
		Text:     text,
		Metadata: map[string]string{"source": source},
	}
}

func TestVectorStore_UpsertIsIdempotent(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "scraped_example", core.SchemaHint{Dimension: 2, Description: "example"}))

	records := []*core.VectorRecord{
		record("https://example.com", 0, "alpha", 1, 0),
		record("https://example.com", 1, "beta", 0, 1),
	}
	n, err := s.Upsert(ctx, "scraped_example", records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Upsert(ctx, "scraped_example", records)
	require.NoError(t, err)

	stats, err := s.CollectionStats(ctx, "scraped_example")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 2, stats.Dimension)
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestVectorStore_Search(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "docs", core.SchemaHint{Dimension: 3}))

	_, err := s.Upsert(ctx, "docs", []*core.VectorRecord{
		record("a", 0, "x axis", 1, 0, 0),
		record("a", 1, "y axis", 0, 1, 0),
		record("a", 2, "mostly x", 0.9, 0.1, 0),
	})
	require.NoError(t, err)

	hits, err := s.Search(ctx, "docs", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x axis", hits[0].Record.Text)
	assert.Equal(t, "mostly x", hits[1].Record.Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	_, err = s.Search(ctx, "missing", []float32{1, 0, 0}, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVectorStore_DimensionMismatch(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "docs", core.SchemaHint{Dimension: 2}))

	_, err := s.Upsert(ctx, "docs", []*core.VectorRecord{record("a", 0, "x", 1, 2, 3)})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	err = s.EnsureCollection(ctx, "docs", core.SchemaHint{Dimension: 4})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestVectorStore_UpsertUnknownCollection(t *testing.T) {
	s := newVectorStore(t)
	_, err := s.Upsert(context.Background(), "nope", []*core.VectorRecord{record("a", 0, "x", 1)})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVectorStore_ListAndDelete(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, "b_docs", core.SchemaHint{Dimension: 1, Description: "second"}))
	require.NoError(t, s.EnsureCollection(ctx, "a_docs", core.SchemaHint{Dimension: 1, Description: "first"}))
	_, err := s.Upsert(ctx, "a_docs", []*core.VectorRecord{record("a", 0, "x", 1), record("a", 1, "y", 1)})
	require.NoError(t, err)

	infos, err := s.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, core.CollectionInfo{Name: "a_docs", Description: "first", DocumentCount: 2}, infos[0])
	assert.Equal(t, "b_docs", infos[1].Name)
	assert.Zero(t, infos[1].DocumentCount)

	require.NoError(t, s.DeleteCollection(ctx, "a_docs"))
	require.NoError(t, s.DeleteCollection(ctx, "a_docs"), "deleting twice is not an error")

	_, err = s.CollectionStats(ctx, "a_docs")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	infos, err = s.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	assert.ErrorIs(t, s.DeleteCollection(ctx, "bad:name"), storage.ErrInvalidCollection)
	assert.NoError(t, s.Ping(ctx))
}
