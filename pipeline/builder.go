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
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/gleaner/ai"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/extract"
	"github.com/poiesic/gleaner/source"
	"github.com/poiesic/gleaner/storage"
)

// DefaultBatchSize is the number of chunks sent per embedding request.
const DefaultBatchSize = 96

type nowFunc func() time.Time

// Builder assembles the pipeline for each job kind from shared collaborators.
type Builder struct {
	resolver  *source.Resolver
	extractor extract.Extractor
	chunking  ChunkConfig
	chunker   *Chunker
	embedder  ai.Embedder
	store     storage.VectorStore
	responder Responder
	policy    Policy
	batchSize int
	now       nowFunc
	logger    *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithResolver sets the source resolver used by scrape jobs.
func WithResolver(r *source.Resolver) Option {
	return func(b *Builder) error {
		b.resolver = r
		return nil
	}
}

// WithExtractor sets the content extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(b *Builder) error {
		b.extractor = e
		return nil
	}
}

// WithChunking sets the chunk size, overlap and unit.
func WithChunking(cfg ChunkConfig) Option {
	return func(b *Builder) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		b.chunking = cfg
		return nil
	}
}

// WithEmbedder sets the embedder.
func WithEmbedder(e ai.Embedder) Option {
	return func(b *Builder) error {
		b.embedder = e
		return nil
	}
}

// WithVectorStore sets the vector store chunks are written to.
func WithVectorStore(s storage.VectorStore) Option {
	return func(b *Builder) error {
		b.store = s
		return nil
	}
}

// WithResponder sets the chat and configuration responder.
func WithResponder(r Responder) Option {
	return func(b *Builder) error {
		b.responder = r
		return nil
	}
}

// WithRetryPolicy sets the retry policy for collaborator calls.
func WithRetryPolicy(p Policy) Option {
	return func(b *Builder) error {
		if err := p.Validate(); err != nil {
			return err
		}
		b.policy = p
		return nil
	}
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) Option {
	return func(b *Builder) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		b.batchSize = n
		return nil
	}
}

// WithClock overrides time.Now for collection naming.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) error {
		b.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a builder. Collaborators are checked when a pipeline
// that needs them is built.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		resolver:  source.NewResolver(),
		chunking:  DefaultChunkConfig(),
		policy:    DefaultPolicy(),
		batchSize: DefaultBatchSize,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	chunker, err := NewChunker(b.chunking)
	if err != nil {
		return nil, err
	}
	b.chunker = chunker
	b.logger = b.logger.With("component", "pipeline-builder")
	return b, nil
}

// Policy returns the retry policy in use.
func (b *Builder) Policy() Policy {
	return b.policy
}

// Build returns the pipeline for kind.
func (b *Builder) Build(kind core.JobKind) (*Pipeline, error) {
	switch kind {
	case core.KindScrape, core.KindLocalUpload:
		if err := requireDeps(kind,
			dep{"extractor", b.extractor != nil},
			dep{"embedder", b.embedder != nil},
			dep{"vector store", b.store != nil},
		); err != nil {
			return nil, err
		}
		stages := []Stage{
			ExtractStage(b.extractor, b.policy, b.logger),
			EmbedStage(b.chunker, b.embedder, b.batchSize, b.policy, b.logger),
			UpsertStage(b.store, b.policy, b.now, b.logger),
		}
		if kind == core.KindScrape {
			stages = append([]Stage{ResolveStage(b.resolver)}, stages...)
		}
		return New(b.logger, stages...), nil
	case core.KindChatQuery:
		if err := requireDeps(kind, dep{"responder", b.responder != nil}); err != nil {
			return nil, err
		}
		return New(b.logger, AnswerStage(b.responder, b.policy)), nil
	case core.KindConfigCommand:
		if err := requireDeps(kind, dep{"responder", b.responder != nil}); err != nil {
			return nil, err
		}
		return New(b.logger, ConfigureStage(b.responder, b.policy)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

type dep struct {
	name    string
	present bool
}

func requireDeps(kind core.JobKind, deps ...dep) error {
	for _, d := range deps {
		if !d.present {
			return fmt.Errorf("%w: %s needs a %s", ErrMissingDependency, kind, d.name)
		}
	}
	return nil
}
