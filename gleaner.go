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


package gleaner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	"github.com/poiesic/gleaner/ai"
	"github.com/poiesic/gleaner/ai/openai"
	"github.com/poiesic/gleaner/api"
	"github.com/poiesic/gleaner/chat"
	"github.com/poiesic/gleaner/config"
	"github.com/poiesic/gleaner/extract"
	"github.com/poiesic/gleaner/orchestrator"
	"github.com/poiesic/gleaner/pipeline"
	"github.com/poiesic/gleaner/search"
	"github.com/poiesic/gleaner/source"
	"github.com/poiesic/gleaner/storage"
	"github.com/poiesic/gleaner/storage/badger"
	"github.com/poiesic/gleaner/storage/memory"
	pgstore "github.com/poiesic/gleaner/storage/pgvector"
	redisstore "github.com/poiesic/gleaner/storage/redis"
)

// Service wires the stores, the AI provider, the extractors, and the
// orchestrator described by a Config.
type Service struct {
	config    *config.Config
	backend   *badger.Backend
	jobs      storage.JobStore
	vectors   storage.VectorStore
	provider  ai.AIProvider
	extractor extract.Extractor
	searcher  *search.Searcher
	chat      *chat.Service
	builder   *pipeline.Builder
	orch      *orchestrator.Orchestrator

	// closers release what New opened, in reverse order.
	closers []func() error
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	provider  ai.AIProvider
	extractor extract.Extractor
	jobs      storage.JobStore
	vectors   storage.VectorStore
	logger    *slog.Logger
}

// WithProvider uses provider instead of an OpenAI-compatible one built
// from the config. The caller keeps ownership.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithExtractor replaces the default extractor router.
func WithExtractor(e extract.Extractor) Option {
	return func(o *serviceOptions) {
		o.extractor = e
	}
}

// WithJobStore uses store instead of the configured one. The caller keeps ownership.
func WithJobStore(store storage.JobStore) Option {
	return func(o *serviceOptions) {
		o.jobs = store
	}
}

// WithVectorStore uses store instead of the configured one. The caller keeps ownership.
func WithVectorStore(store storage.VectorStore) Option {
	return func(o *serviceOptions) {
		o.vectors = store
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// New opens the configured stores and starts the orchestrator. A nil cfg
// uses config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &serviceOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	s := &Service{
		config: cfg,
		logger: options.logger.With("component", "gleaner"),
	}
	if err := s.init(ctx, options); err != nil {
		if closeErr := s.release(); closeErr != nil {
			s.logger.Error("error releasing resources", "err", closeErr)
		}
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context, o *serviceOptions) error {
	cfg := s.config
	logger := o.logger

	if needsBackend(cfg, o) {
		backend, err := badger.OpenBackend(filepath.Join(cfg.DataDir, "badger"), false, logger)
		if err != nil {
			return err
		}
		s.backend = backend
		s.closers = append(s.closers, backend.Close)
	}

	jobs, err := s.openJobStore(ctx, o)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	s.jobs = jobs

	vectors, err := s.openVectorStore(ctx, o)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	s.vectors = vectors

	if o.provider != nil {
		s.provider = o.provider
	} else {
		provider, err := openai.NewProvider(cfg.AIConfig())
		if err != nil {
			return err
		}
		s.provider = provider
		s.closers = append(s.closers, provider.Close)
	}

	s.extractor = o.extractor
	if s.extractor == nil {
		s.extractor = defaultExtractor(cfg, logger)
	}

	s.searcher, err = search.NewSearcher(s.vectors, s.provider.Embedder(), search.WithLogger(logger))
	if err != nil {
		return err
	}
	s.chat, err = chat.NewService(s.searcher, s.vectors, s.provider.ChatModel(),
		chat.WithContextSize(cfg.Vectors.ContextSize),
		chat.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	s.builder, err = pipeline.NewBuilder(
		pipeline.WithResolver(source.NewResolver(source.WithLogger(logger))),
		pipeline.WithExtractor(s.extractor),
		pipeline.WithChunking(cfg.ChunkConfig()),
		pipeline.WithEmbedder(s.provider.Embedder()),
		pipeline.WithVectorStore(s.vectors),
		pipeline.WithResponder(s.chat),
		pipeline.WithRetryPolicy(cfg.RetryPolicy()),
		pipeline.WithBatchSize(cfg.Chunking.BatchSize),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	s.orch, err = orchestrator.New(s.jobs, s.builder,
		orchestrator.WithWorkers(cfg.Jobs.Workers),
		orchestrator.WithLogger(logger),
	)
	return err
}

func needsBackend(cfg *config.Config, o *serviceOptions) bool {
	return (o.jobs == nil && cfg.Jobs.Store == config.JobStoreBadger) ||
		(o.vectors == nil && cfg.Vectors.Store == config.VectorStoreBadger)
}

func (s *Service) openJobStore(ctx context.Context, o *serviceOptions) (storage.JobStore, error) {
	if o.jobs != nil {
		return o.jobs, nil
	}
	cfg := s.config

	var (
		store storage.JobStore
		err   error
	)
	switch cfg.Jobs.Store {
	case config.JobStoreMemory:
		store, err = memory.NewJobStore(memory.WithRetention(cfg.Retention()), memory.WithLogger(o.logger))
	case config.JobStoreBadger:
		store, err = badger.NewJobStore(s.backend, badger.WithRetention(cfg.Retention()), badger.WithJobLogger(o.logger))
	case config.JobStoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Jobs.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Jobs.RedisAddr, err)
		}
		s.closers = append(s.closers, client.Close)
		store, err = redisstore.NewJobStore(client, redisstore.WithRetention(cfg.Retention()), redisstore.WithLogger(o.logger))
	default:
		return nil, fmt.Errorf("unknown job store %q", cfg.Jobs.Store)
	}
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store.Close)

	// Jobs whose owning process is gone can never finish.
	if r, ok := store.(storage.Recoverer); ok {
		n, err := r.RecoverInterrupted(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recover interrupted jobs: %w", err)
		}
		if n > 0 {
			s.logger.Warn("marked interrupted jobs as cancelled", "count", n)
		}
	}
	return store, nil
}

func (s *Service) openVectorStore(ctx context.Context, o *serviceOptions) (storage.VectorStore, error) {
	if o.vectors != nil {
		return o.vectors, nil
	}
	cfg := s.config

	var (
		store storage.VectorStore
		err   error
	)
	switch cfg.Vectors.Store {
	case config.VectorStoreBadger:
		store, err = badger.NewVectorStore(s.backend, badger.WithVectorLogger(o.logger))
	case config.VectorStorePgvector:
		store, err = pgstore.Connect(ctx, cfg.Vectors.PostgresDSN, pgstore.WithLogger(o.logger))
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.Vectors.Store)
	}
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, store.Close)
	return store, nil
}

// defaultExtractor routes remote crawls to Firecrawl when an API key is
// configured and to a plain HTTP fetch otherwise. Advanced crawls always
// need Firecrawl.
func defaultExtractor(cfg *config.Config, logger *slog.Logger) extract.Extractor {
	firecrawl := extract.NewFirecrawl(
		extract.WithAPIKey(cfg.Firecrawl.APIKey),
		extract.WithBaseURL(cfg.Firecrawl.BaseURL),
		extract.WithCrawlLimit(cfg.Firecrawl.CrawlLimit),
		extract.WithFirecrawlLogger(logger),
	)

	var remote extract.Extractor = firecrawl
	if cfg.Firecrawl.APIKey == "" {
		remote = extract.NewWeb(extract.WithWebLogger(logger))
	}

	return extract.NewRouter(
		extract.WithExtractor(source.KindRemoteCrawl, remote),
		extract.WithExtractor(source.KindAdvancedCrawl, firecrawl),
		extract.WithExtractor(source.KindLocal, extract.NewLocal(extract.WithLocalLogger(logger))),
	)
}

// Close shuts the orchestrator down, failing unfinished jobs, then releases
// every store and client New opened.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.orch != nil {
		if err := s.orch.Close(ctx); err != nil {
			s.logger.Error("error shutting down orchestrator", "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) release() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("error closing resource", "err", err)
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Config returns the settings the service was built from.
func (s *Service) Config() *config.Config {
	return s.config
}

// Orchestrator returns the job orchestrator.
func (s *Service) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// JobStore returns the job store.
func (s *Service) JobStore() storage.JobStore {
	return s.jobs
}

// VectorStore returns the vector store.
func (s *Service) VectorStore() storage.VectorStore {
	return s.vectors
}

// Searcher returns the semantic searcher over the vector store.
func (s *Service) Searcher() *search.Searcher {
	return s.searcher
}

// Chat returns the chat service.
func (s *Service) Chat() *chat.Service {
	return s.chat
}

// NewServer returns an HTTP API bound to this service. opts are applied
// after the configured server settings.
func (s *Service) NewServer(opts ...api.Option) (*api.Server, error) {
	base := []api.Option{
		api.WithCORSOrigins(s.config.Server.CORSOrigins...),
		api.WithChatTimeout(s.config.Server.ChatTimeout),
		api.WithLogger(s.logger),
	}
	return api.NewServer(s.orch, s.vectors, append(base, opts...)...)
}
