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


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/gleaner/ai/mock"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/extract"
	"github.com/poiesic/gleaner/source"
	badgerstore "github.com/poiesic/gleaner/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor returns docs after failing the first failures calls with err.
type fakeExtractor struct {
	mu       sync.Mutex
	docs     []core.Document
	failures int
	err      error
	calls    int
	plans    []source.Plan
}

func (f *fakeExtractor) Extract(_ context.Context, plan source.Plan) ([]core.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.plans = append(f.plans, plan)
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.docs, nil
}

type fakeResponder struct {
	answer    string
	configure string
	err       error
	question  string
	target    string
}

func (f *fakeResponder) Answer(_ context.Context, question, collection string) (string, error) {
	f.question, f.target = question, collection
	return f.answer, f.err
}

func (f *fakeResponder) Configure(_ context.Context, request string) (string, error) {
	f.question = request
	return f.configure, f.err
}

func articles(n, size int) []core.Document {
	docs := make([]core.Document, n)
	for i := range docs {
		var b strings.Builder
		for b.Len() < size {
			fmt.Fprintf(&b, "Article %d sentence about indexing pipelines. ", i)
		}
		docs[i] = core.Document{
			Text:      b.String(),
			SourceURI: fmt.Sprintf("https://example.com/blog/%d", i),
			Title:     fmt.Sprintf("Post %d", i),
		}
	}
	return docs
}

func newVectorStore(t *testing.T) *badgerstore.VectorStore {
	t.Helper()
	_, vectors, backend, err := badgerstore.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return vectors
}

func newBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	base := []Option{
		WithRetryPolicy(fastPolicy()),
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }),
	}
	b, err := NewBuilder(append(base, opts...)...)
	require.NoError(t, err)
	return b
}

func runJob(t *testing.T, b *Builder, kind core.JobKind, in core.Input) (*Artifact, []float64, error) {
	t.Helper()
	p, err := b.Build(kind)
	require.NoError(t, err)

	job := core.NewJob(kind, in, time.Now())
	job.ID = "job-1"
	var progress []float64
	out, err := p.Run(context.Background(), NewArtifact(job), func(v float64) {
		progress = append(progress, v)
	})
	return out, progress, err
}

func TestScrape_TenDocuments(t *testing.T) {
	extractor := &fakeExtractor{docs: articles(10, 2500)}
	embedder := mock.NewMockEmbedder()
	store := newVectorStore(t)
	b := newBuilder(t, WithExtractor(extractor), WithEmbedder(embedder), WithVectorStore(store))

	out, progress, err := runJob(t, b, core.KindScrape, core.Input{
		Prompt:     "Scrape articles from https://example.com/blog",
		SourceHint: core.HintAuto,
	})
	require.NoError(t, err)

	assert.Equal(t, source.RemoteCrawl("https://example.com/blog"), extractor.plans[0])
	res := out.Result()
	assert.Equal(t, 10, res.DocumentsProcessed)
	assert.Equal(t, "scraped_example_com", res.CollectionName)
	assert.Greater(t, res.ChunksEmbedded, 10)
	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, progress)

	stats, err := store.CollectionStats(context.Background(), "scraped_example_com")
	require.NoError(t, err)
	assert.Equal(t, res.ChunksEmbedded, stats.TotalCount)
	assert.Equal(t, mock.DefaultDimension, stats.Dimension)
}

func TestScrape_IdempotentRerun(t *testing.T) {
	extractor := &fakeExtractor{docs: articles(3, 1500)}
	store := newVectorStore(t)
	b := newBuilder(t, WithExtractor(extractor), WithEmbedder(mock.NewMockEmbedder()), WithVectorStore(store))
	in := core.Input{Prompt: "https://example.com/docs", SourceHint: core.HintAuto}

	first, _, err := runJob(t, b, core.KindScrape, in)
	require.NoError(t, err)
	_, _, err = runJob(t, b, core.KindScrape, in)
	require.NoError(t, err)

	stats, err := store.CollectionStats(context.Background(), first.Collection)
	require.NoError(t, err)
	assert.Equal(t, len(first.Chunks), stats.TotalCount)
}

func TestScrape_TransientExtractionRecovers(t *testing.T) {
	unavailable := core.Transient(&extract.HTTPStatusError{URL: "https://example.com", StatusCode: 503})
	extractor := &fakeExtractor{docs: articles(2, 200), failures: 3, err: unavailable}
	b := newBuilder(t, WithExtractor(extractor), WithEmbedder(mock.NewMockEmbedder()), WithVectorStore(newVectorStore(t)))

	out, progress, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, 4, extractor.calls)
	assert.Equal(t, 2, out.Result().DocumentsProcessed)
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

func TestScrape_ExtractionExhausted(t *testing.T) {
	unavailable := core.Transient(&extract.HTTPStatusError{URL: "https://example.com", StatusCode: 503})
	extractor := &fakeExtractor{failures: 100, err: unavailable}
	b := newBuilder(t, WithExtractor(extractor), WithEmbedder(mock.NewMockEmbedder()), WithVectorStore(newVectorStore(t)))

	_, progress, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "https://example.com"})
	require.Error(t, err)
	assert.Equal(t, core.KindExtraction, core.ToJobError(err).Kind)
	assert.Equal(t, fastPolicy().MaxAttempts, extractor.calls)
	assert.Equal(t, []float64{0.25}, progress)
}

func TestScrape_Unresolvable(t *testing.T) {
	extractor := &fakeExtractor{}
	b := newBuilder(t, WithExtractor(extractor), WithEmbedder(mock.NewMockEmbedder()), WithVectorStore(newVectorStore(t)))

	_, progress, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "something vague"})
	require.Error(t, err)
	assert.Equal(t, core.KindUnresolvable, core.ToJobError(err).Kind)
	assert.Zero(t, extractor.calls)
	assert.Empty(t, progress)
}

func TestScrape_NoDocuments(t *testing.T) {
	b := newBuilder(t, WithExtractor(&fakeExtractor{}), WithEmbedder(mock.NewMockEmbedder()), WithVectorStore(newVectorStore(t)))

	_, _, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "https://example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrNoDocuments)
	assert.Equal(t, core.KindExtraction, core.ToJobError(err).Kind)
}

func TestScrape_PartialExtractionKeepsDocuments(t *testing.T) {
	partial := &extract.PartialError{Extracted: 1, Err: errors.New("https://example.com/b: not found")}
	extractor := extractorFunc(func(context.Context, source.Plan) ([]core.Document, error) {
		return articles(1, 100), partial
	})
	b := newBuilder(t, WithExtractor(extractor), WithEmbedder(mock.NewMockEmbedder()), WithVectorStore(newVectorStore(t)))

	out, _, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "https://example.com/a https://example.com/b"})
	require.Error(t, err)
	assert.Len(t, out.Documents, 1)
	jobErr := core.ToJobError(err)
	assert.Equal(t, core.KindExtraction, jobErr.Kind)
	assert.Contains(t, jobErr.Message, "1 documents extracted")
}

type extractorFunc func(context.Context, source.Plan) ([]core.Document, error)

func (f extractorFunc) Extract(ctx context.Context, plan source.Plan) ([]core.Document, error) {
	return f(ctx, plan)
}

func TestEmbed_ExhaustionFreezesProgress(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, core.Transient(errors.New("rate limited"))
	}
	b := newBuilder(t,
		WithExtractor(&fakeExtractor{docs: articles(2, 300)}),
		WithEmbedder(embedder),
		WithVectorStore(newVectorStore(t)),
	)

	_, progress, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "https://example.com"})
	require.Error(t, err)
	assert.Equal(t, core.KindEmbedding, core.ToJobError(err).Kind)
	assert.Equal(t, fastPolicy().MaxAttempts, embedder.CallCount())
	assert.Equal(t, []float64{0.25, 0.5}, progress)
}

func TestEmbed_CountMismatchIsFatal(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}
	b := newBuilder(t,
		WithExtractor(&fakeExtractor{docs: articles(3, 100)}),
		WithEmbedder(embedder),
		WithVectorStore(newVectorStore(t)),
	)

	_, _, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "https://example.com"})
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestEmbed_Batches(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	b := newBuilder(t,
		WithExtractor(&fakeExtractor{docs: articles(5, 50)}),
		WithEmbedder(embedder),
		WithVectorStore(newVectorStore(t)),
		WithBatchSize(2),
	)

	out, _, err := runJob(t, b, core.KindScrape, core.Input{Prompt: "https://example.com"})
	require.NoError(t, err)
	assert.Len(t, out.Chunks, 5)
	batches := embedder.Batches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 1)
}

func TestLocalUpload(t *testing.T) {
	docs := []core.Document{
		{Text: "alpha", SourceURI: "file:///a.txt", Metadata: map[string]string{extract.MetaPath: "/a.txt"}},
		{Text: "beta", SourceURI: "file:///b.csv", Metadata: map[string]string{extract.MetaPath: "/b.csv"}},
		{Text: "gamma", SourceURI: "file:///b.csv", Metadata: map[string]string{extract.MetaPath: "/b.csv"}},
	}
	extractor := &fakeExtractor{docs: docs}
	store := newVectorStore(t)
	b := newBuilder(t, WithExtractor(extractor), WithEmbedder(mock.NewMockEmbedder()), WithVectorStore(store))

	out, progress, err := runJob(t, b, core.KindLocalUpload, core.Input{Files: []string{"/a.txt", "/b.csv"}})
	require.NoError(t, err)
	assert.Equal(t, source.Local("/a.txt", "/b.csv"), extractor.plans[0])
	assert.Equal(t, &core.Result{
		CollectionName:     LocalFilesCollection,
		DocumentsProcessed: 3,
		ChunksEmbedded:     3,
		FilesProcessed:     2,
	}, out.Result())
	assert.Equal(t, []float64{1.0 / 3, 2.0 / 3, 1}, progress)

	infos, err := store.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Local files processed and uploaded", infos[0].Description)
}

func TestChatQuery(t *testing.T) {
	responder := &fakeResponder{answer: "42"}
	b := newBuilder(t, WithResponder(responder))

	out, progress, err := runJob(t, b, core.KindChatQuery, core.Input{Prompt: "meaning?", Collection: "docs"})
	require.NoError(t, err)
	assert.Equal(t, &core.Result{Response: "42"}, out.Result())
	assert.Equal(t, "docs", responder.target)
	assert.Equal(t, []float64{1}, progress)
}

func TestConfigCommand_Failure(t *testing.T) {
	responder := &fakeResponder{err: errors.New("model offline")}
	b := newBuilder(t, WithResponder(responder))

	_, _, err := runJob(t, b, core.KindConfigCommand, core.Input{Prompt: "list collections"})
	require.Error(t, err)
	assert.Equal(t, core.KindChat, core.ToJobError(err).Kind)
}

func TestBuilder_MissingDependencies(t *testing.T) {
	b := newBuilder(t)
	for _, kind := range core.JobKinds {
		_, err := b.Build(kind)
		assert.ErrorIs(t, err, ErrMissingDependency, kind)
	}
	_, err := b.Build("bogus")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestBuilder_InvalidOptions(t *testing.T) {
	_, err := NewBuilder(WithBatchSize(0))
	assert.Error(t, err)
	_, err = NewBuilder(WithRetryPolicy(Policy{}))
	assert.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = NewBuilder(WithChunking(ChunkConfig{Size: 10, Overlap: 10, Unit: UnitCharacters}))
	assert.ErrorIs(t, err, ErrInvalidChunking)
}
