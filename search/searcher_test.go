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


package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/gleaner/ai/mock"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
	"github.com/poiesic/gleaner/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) storage.VectorStore {
	t.Helper()
	_, vectors, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return vectors
}

func seed(t *testing.T, store storage.VectorStore, collection string, texts map[string][]float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, collection, core.SchemaHint{Dimension: 3}))
	records := make([]*core.VectorRecord, 0, len(texts))
	for text, vec := range texts {
		records = append(records, &core.VectorRecord{DocID: core.IDFromContent(text), Vector: vec, Text: text})
	}
	_, err := store.Upsert(ctx, collection, records)
	require.NoError(t, err)
}

func fixedEmbedder(vec []float32) *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return vec, nil
	}
	return e
}

func TestNewSearcher(t *testing.T) {
	store := newStore(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(store, embedder)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(store, embedder, WithLogger(nil), WithMinScore(0.5))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with custom logger", func(t *testing.T) {
		_, err := NewSearcher(store, embedder, WithLogger(slog.Default()))
		require.NoError(t, err)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := NewSearcher(nil, embedder)
		assert.Equal(t, ErrVectorStoreRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(store, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestFindSimilar_RankedBySimilarity(t *testing.T) {
	store := newStore(t)
	seed(t, store, "notes", map[string][]float32{
		"This is about artificial intelligence": {0.9, 0.1, 0.0},
		"This is about machine learning":        {0.85, 0.15, 0.0},
		"This is about cooking recipes":         {0.1, 0.1, 0.8},
	})
	searcher, err := NewSearcher(store, fixedEmbedder([]float32{0.88, 0.12, 0.0}))
	require.NoError(t, err)

	results, err := searcher.FindSimilar(context.Background(), "notes", "neural networks", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.NotContains(t, r.Record.Text, "cooking")
	}
}

func TestFindSimilar_VerbatimBoost(t *testing.T) {
	store := newStore(t)
	seed(t, store, "notes", map[string][]float32{
		"The sourdough starter needs feeding": {0.8, 0.6, 0.0},
		"Unrelated but closer vector":         {1.0, 0.0, 0.0},
	})
	searcher, err := NewSearcher(store, fixedEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)

	results, err := searcher.FindSimilar(context.Background(), "notes", "sourdough starter", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "The sourdough starter needs feeding", results[0].Record.Text)
	assert.InDelta(t, 0.8+verbatimBoost, results[0].Score, 1e-4)
}

func TestFindSimilar_MinScore(t *testing.T) {
	store := newStore(t)
	seed(t, store, "notes", map[string][]float32{
		"close": {1, 0, 0},
		"far":   {0, 0, 1},
	})
	searcher, err := NewSearcher(store, fixedEmbedder([]float32{1, 0, 0}), WithMinScore(0.5))
	require.NoError(t, err)

	results, err := searcher.FindSimilar(context.Background(), "notes", "x", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].Record.Text)
}

func TestFindSimilar_Errors(t *testing.T) {
	store := newStore(t)

	searcher, err := NewSearcher(store, fixedEmbedder([]float32{1, 0, 0}))
	require.NoError(t, err)
	_, err = searcher.FindSimilar(context.Background(), "missing", "q", 3)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = searcher.FindSimilar(context.Background(), "missing", "q", 0)
	assert.ErrorIs(t, err, ErrInvalidMaxHits)

	failing := mock.NewMockEmbedder()
	failing.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedder down")
	}
	searcher, err = NewSearcher(store, failing)
	require.NoError(t, err)
	_, err = searcher.FindSimilar(context.Background(), "missing", "q", 3)
	assert.EqualError(t, err, "embedder down")
}

func TestFindSimilarWithMonitor(t *testing.T) {
	store := newStore(t)
	seed(t, store, "notes", map[string][]float32{"Test message": {0.9, 0.1, 0.0}})
	searcher, err := NewSearcher(store, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	monitor := &testMonitor{}
	results, err := searcher.FindSimilarWithMonitor(context.Background(), "notes", "test message", 10, monitor)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	assert.Equal(t, "notes", monitor.collection)
	assert.Equal(t, 3, monitor.dimension)
	assert.Equal(t, 1, monitor.verbatim)
	assert.True(t, monitor.finishCalled)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("a\n\n b\tc", 10))
	assert.Equal(t, "abc...", Snippet("abcdef", 3))
}

// testMonitor is a simple test implementation of SearchMonitor
type testMonitor struct {
	collection   string
	dimension    int
	verbatim     int
	finishCalled bool
}

func (m *testMonitor) Start(collection, _ string) {
	m.collection = collection
}

func (m *testMonitor) AfterEmbedding(dimension int) {
	m.dimension = dimension
}

func (m *testMonitor) AfterVectorSearch(_ []*core.ScoredRecord) {}

func (m *testMonitor) VerbatimHit(_ *core.ScoredRecord) {
	m.verbatim++
}

func (m *testMonitor) Finish(_ []*core.ScoredRecord) {
	m.finishCalled = true
}
