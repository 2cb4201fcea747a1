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
	"log/slog"
	"sort"

	"github.com/poiesic/gleaner/ai"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
)

// verbatimBoost is added to hits that contain every query word.
const verbatimBoost = 0.3

// candidateFactor widens the vector search so verbatim matches just outside
// the top hits can still be promoted.
const candidateFactor = 2

// Searcher retrieves relevant chunks from a collection.
type Searcher struct {
	store    storage.VectorStore
	embedder ai.Embedder
	minScore float32
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore drops hits scoring below min. Default is 0, which keeps
// every hit.
func WithMinScore(min float32) Option {
	return func(s *Searcher) error {
		s.minScore = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// FindSimilar returns up to maxHits chunks of collection ranked by relevance.
func (s *Searcher) FindSimilar(ctx context.Context, collection, query string, maxHits int) ([]*core.ScoredRecord, error) {
	return s.FindSimilarWithMonitor(ctx, collection, query, maxHits, nil)
}

// FindSimilarWithMonitor is FindSimilar with callbacks at each step.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, collection, query string, maxHits int, monitor SearchMonitor) ([]*core.ScoredRecord, error) {
	if maxHits < 1 {
		return nil, ErrInvalidMaxHits
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(collection, query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(len(embedding))

	hits, err := s.store.Search(ctx, collection, embedding, maxHits*candidateFactor)
	if err != nil {
		s.logger.Error("error querying collection", "collection", collection, "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(hits)

	results := make([]*core.ScoredRecord, 0, len(hits))
	for _, hit := range hits {
		if hit == nil || hit.Record == nil {
			continue
		}
		scored := &core.ScoredRecord{Record: hit.Record, Score: hit.Score}
		if containsAllQueryWords(hit.Record.Text, query) {
			scored.Score += verbatimBoost
			monitor.VerbatimHit(scored)
		}
		if scored.Score < s.minScore {
			continue
		}
		results = append(results, scored)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	s.logger.Debug("search finished", "collection", collection, "candidates", len(hits), "results", len(results))
	return results, nil
}
