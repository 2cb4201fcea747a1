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


// Package config loads service settings from defaults, an optional YAML file,
// an optional .env file, and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/gleaner/ai"
	"github.com/poiesic/gleaner/pipeline"
	"github.com/poiesic/gleaner/storage"
	"gopkg.in/yaml.v2"
)

// Job store backends.
const (
	JobStoreMemory = "memory"
	JobStoreBadger = "badger"
	JobStoreRedis  = "redis"
)

// Vector store backends.
const (
	VectorStoreBadger   = "badger"
	VectorStorePgvector = "pgvector"
)

// Config holds every setting of a gleaner process.
type Config struct {
	// DataDir holds the badger database when a badger store is selected.
	DataDir string `yaml:"data_dir"`

	Server    ServerConfig    `yaml:"server"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Vectors   VectorsConfig   `yaml:"vectors"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retry     RetryConfig     `yaml:"retry"`
	AI        AIConfig        `yaml:"ai"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	CORSOrigins []string      `yaml:"cors_origins"`
	ChatTimeout time.Duration `yaml:"chat_timeout"`
}

// JobsConfig configures the job store and the worker pool.
type JobsConfig struct {
	Store     string        `yaml:"store"`
	RedisAddr string        `yaml:"redis_addr"`
	Workers   int           `yaml:"workers"`
	MaxJobs   int           `yaml:"max_jobs"`
	RetainFor time.Duration `yaml:"retain_for"`
}

// VectorsConfig selects the vector store.
type VectorsConfig struct {
	Store       string `yaml:"store"`
	PostgresDSN string `yaml:"postgres_dsn"`
	// ContextSize is the number of documents a chat answer is grounded on.
	ContextSize int `yaml:"context_size"`
}

// ChunkingConfig controls how documents are split before embedding.
type ChunkingConfig struct {
	Size      int    `yaml:"size"`
	Overlap   int    `yaml:"overlap"`
	Unit      string `yaml:"unit"`
	BatchSize int    `yaml:"embed_batch"`
}

// RetryConfig controls retries of transient collaborator failures.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// AIConfig configures the embedding and chat endpoints.
type AIConfig struct {
	EmbeddingHost  string  `yaml:"embedding_host"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ChatHost       string  `yaml:"chat_host"`
	ChatModel      string  `yaml:"chat_model"`
	Token          string  `yaml:"token"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// FirecrawlConfig configures the crawl service used for remote sources.
type FirecrawlConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	CrawlLimit int    `yaml:"crawl_limit"`
}

// Default returns the built-in settings: in-memory jobs, a badger vector
// store under ./data, and a local OpenAI-compatible server.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	chunking := pipeline.DefaultChunkConfig()
	retry := pipeline.DefaultPolicy()

	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:3000"},
			ChatTimeout: 60 * time.Second,
		},
		Jobs: JobsConfig{
			Store:   JobStoreMemory,
			Workers: 4,
			MaxJobs: storage.DefaultMaxJobs,
		},
		Vectors: VectorsConfig{
			Store:       VectorStoreBadger,
			ContextSize: 5,
		},
		Chunking: ChunkingConfig{
			Size:      chunking.Size,
			Overlap:   chunking.Overlap,
			Unit:      string(chunking.Unit),
			BatchSize: pipeline.DefaultBatchSize,
		},
		Retry: RetryConfig{
			Attempts:  retry.MaxAttempts,
			BaseDelay: retry.BaseDelay,
			MaxDelay:  retry.MaxDelay,
		},
		AI: AIConfig{
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			ChatHost:       aiDefaults.ChatHost,
			ChatModel:      aiDefaults.ChatModel,
			Token:          aiDefaults.Token,
			Temperature:    aiDefaults.Temperature,
			MaxTokens:      aiDefaults.MaxTokens,
		},
		Firecrawl: FirecrawlConfig{
			BaseURL:    "https://api.firecrawl.dev",
			CrawlLimit: 10,
		},
	}
}

// Load builds a Config from the defaults, the YAML file at path, the .env
// file at envFile, and the process environment. Empty paths are skipped; a
// missing .env file is not an error. The result is validated.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges and backend names and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{JobStoreMemory, JobStoreBadger, JobStoreRedis}, c.Jobs.Store) {
		errs = append(errs, fmt.Errorf("unknown job store %q", c.Jobs.Store))
	}
	if c.Jobs.Store == JobStoreRedis && c.Jobs.RedisAddr == "" {
		errs = append(errs, errors.New("redis job store requires a redis address"))
	}
	if !slices.Contains([]string{VectorStoreBadger, VectorStorePgvector}, c.Vectors.Store) {
		errs = append(errs, fmt.Errorf("unknown vector store %q", c.Vectors.Store))
	}
	if c.Vectors.Store == VectorStorePgvector && c.Vectors.PostgresDSN == "" {
		errs = append(errs, errors.New("pgvector store requires a postgres DSN"))
	}
	if (c.Jobs.Store == JobStoreBadger || c.Vectors.Store == VectorStoreBadger) && c.DataDir == "" {
		errs = append(errs, errors.New("badger store requires a data directory"))
	}
	if c.Jobs.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Jobs.Workers))
	}
	if c.Jobs.MaxJobs < 0 {
		errs = append(errs, fmt.Errorf("max jobs must not be negative, got %d", c.Jobs.MaxJobs))
	}
	if c.Jobs.RetainFor < 0 {
		errs = append(errs, fmt.Errorf("retain for must not be negative, got %s", c.Jobs.RetainFor))
	}
	if c.Vectors.ContextSize < 1 {
		errs = append(errs, fmt.Errorf("context size must be positive, got %d", c.Vectors.ContextSize))
	}
	if c.Chunking.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("embed batch must be positive, got %d", c.Chunking.BatchSize))
	}
	if c.Server.ChatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("chat timeout must be positive, got %s", c.Server.ChatTimeout))
	}
	if err := c.ChunkConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ChunkConfig returns the chunking settings in pipeline form.
func (c *Config) ChunkConfig() pipeline.ChunkConfig {
	return pipeline.ChunkConfig{
		Size:    c.Chunking.Size,
		Overlap: c.Chunking.Overlap,
		Unit:    pipeline.ChunkUnit(c.Chunking.Unit),
	}
}

// RetryPolicy returns the retry settings in pipeline form.
func (c *Config) RetryPolicy() pipeline.Policy {
	return pipeline.Policy{
		MaxAttempts: c.Retry.Attempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}

// Retention returns the job retention settings.
func (c *Config) Retention() storage.Retention {
	return storage.Retention{MaxJobs: c.Jobs.MaxJobs, RetainFor: c.Jobs.RetainFor}
}

// AIConfig returns the provider settings.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithChatHost(c.AI.ChatHost),
		ai.WithChatModel(c.AI.ChatModel),
		ai.WithToken(c.AI.Token),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxTokens(c.AI.MaxTokens),
		ai.WithEmbeddingBatchSize(c.Chunking.BatchSize),
	)
}
