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


package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/gleaner/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, JobStoreMemory, cfg.Jobs.Store)
	assert.Equal(t, VectorStoreBadger, cfg.Vectors.Store)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, pipeline.DefaultChunkConfig(), cfg.ChunkConfig())
	assert.Equal(t, pipeline.DefaultPolicy(), cfg.RetryPolicy())
	assert.Equal(t, 1000, cfg.Retention().MaxJobs)
	assert.Equal(t, "http://localhost:11434/v1", cfg.AIConfig().EmbeddingHost)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupMap(map[string]string{
		"GLEANER_JOB_STORE":        "redis",
		"GLEANER_REDIS_ADDR":       "localhost:6379",
		"GLEANER_WORKERS":          "8",
		"GLEANER_RETAIN_FOR":       "24h",
		"GLEANER_CHUNK_UNIT":       "tokens",
		"GLEANER_CHUNK_SIZE":       "512",
		"GLEANER_CHUNK_OVERLAP":    "64",
		"GLEANER_RETRY_BASE_DELAY": "250ms",
		"GLEANER_CORS_ORIGINS":     "http://a.example.com, http://b.example.com,",
		"GLEANER_CHAT_MODEL":       "gpt-4o-mini",
		"FIRECRAWL_API_KEY":        "fc-test",
		"GLEANER_EMBEDDING_HOST":   "   ",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, JobStoreRedis, cfg.Jobs.Store)
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, 24*time.Hour, cfg.Retention().RetainFor)
	assert.Equal(t, pipeline.ChunkConfig{Size: 512, Overlap: 64, Unit: pipeline.UnitTokens}, cfg.ChunkConfig())
	assert.Equal(t, 250*time.Millisecond, cfg.RetryPolicy().BaseDelay)
	assert.Equal(t, []string{"http://a.example.com", "http://b.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.ChatModel)
	assert.Equal(t, "fc-test", cfg.Firecrawl.APIKey)
	assert.Equal(t, "http://localhost:11434/v1", cfg.AI.EmbeddingHost, "blank values are ignored")
}

func TestApplyEnv_Malformed(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(lookupMap(map[string]string{
		"GLEANER_WORKERS":    "many",
		"GLEANER_RETAIN_FOR": "forever",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GLEANER_WORKERS")
	assert.Contains(t, err.Error(), "GLEANER_RETAIN_FOR")
	assert.Equal(t, 4, cfg.Jobs.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown job store", func(c *Config) { c.Jobs.Store = "etcd" }, `unknown job store "etcd"`},
		{"redis without addr", func(c *Config) { c.Jobs.Store = JobStoreRedis }, "redis address"},
		{"unknown vector store", func(c *Config) { c.Vectors.Store = "weaviate" }, "unknown vector store"},
		{"pgvector without dsn", func(c *Config) { c.Vectors.Store = VectorStorePgvector }, "postgres DSN"},
		{"badger without data dir", func(c *Config) { c.DataDir = "" }, "data directory"},
		{"zero workers", func(c *Config) { c.Jobs.Workers = 0 }, "workers must be positive"},
		{"negative retention", func(c *Config) { c.Jobs.RetainFor = -time.Second }, "retain for"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "overlap"},
		{"zero retry attempts", func(c *Config) { c.Retry.Attempts = 0 }, "MaxAttempts"},
		{"missing chat model", func(c *Config) { c.AI.ChatModel = "" }, "ChatModel is required"},
		{"zero context size", func(c *Config) { c.Vectors.ContextSize = 0 }, "context size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Layers(t *testing.T) {
	yamlPath := writeFile(t, "gleaner.yaml", `
data_dir: /var/lib/gleaner
server:
  addr: ":9000"
  chat_timeout: 30s
jobs:
  store: badger
  workers: 2
  max_jobs: 50
vectors:
  context_size: 3
chunking:
  size: 800
  overlap: 100
retry:
  attempts: 6
  base_delay: 1s
ai:
  chat_model: llama3
`)
	envPath := writeFile(t, ".env", "GLEANER_WORKERS=3\nGLEANER_CHAT_MODEL=from-dotenv\n")

	t.Setenv("GLEANER_CHAT_MODEL", "from-env")

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/gleaner", cfg.DataDir)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ChatTimeout)
	assert.Equal(t, JobStoreBadger, cfg.Jobs.Store)
	assert.Equal(t, 3, cfg.Jobs.Workers, ".env beats the file")
	assert.Equal(t, "from-env", cfg.AI.ChatModel, "the environment beats .env")
	assert.Equal(t, 50, cfg.Jobs.MaxJobs)
	assert.Equal(t, 3, cfg.Vectors.ContextSize)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 6, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay, "unset keys keep defaults")
	assert.Equal(t, "qwen2.5:3b", Default().AI.ChatModel)

	// godotenv sets variables for the process.
	t.Cleanup(func() { os.Unsetenv("GLEANER_WORKERS") })
}

func TestLoad_MissingFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	cfg, err := Load("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, JobStoreMemory, cfg.Jobs.Store)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "jobs: [unclosed")
	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}
