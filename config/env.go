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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides settings with the environment variables that are set
// and non-empty. Malformed numbers and durations are reported together.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("GLEANER_DATA_DIR", &c.DataDir)
	e.str("GLEANER_HTTP_ADDR", &c.Server.Addr)
	e.list("GLEANER_CORS_ORIGINS", &c.Server.CORSOrigins)
	e.duration("GLEANER_CHAT_TIMEOUT", &c.Server.ChatTimeout)

	e.str("GLEANER_JOB_STORE", &c.Jobs.Store)
	e.str("GLEANER_REDIS_ADDR", &c.Jobs.RedisAddr)
	e.int("GLEANER_WORKERS", &c.Jobs.Workers)
	e.int("GLEANER_MAX_JOBS", &c.Jobs.MaxJobs)
	e.duration("GLEANER_RETAIN_FOR", &c.Jobs.RetainFor)

	e.str("GLEANER_VECTOR_STORE", &c.Vectors.Store)
	e.str("GLEANER_PG_DSN", &c.Vectors.PostgresDSN)
	e.int("GLEANER_CONTEXT_SIZE", &c.Vectors.ContextSize)

	e.int("GLEANER_CHUNK_SIZE", &c.Chunking.Size)
	e.int("GLEANER_CHUNK_OVERLAP", &c.Chunking.Overlap)
	e.str("GLEANER_CHUNK_UNIT", &c.Chunking.Unit)
	e.int("GLEANER_EMBED_BATCH", &c.Chunking.BatchSize)

	e.int("GLEANER_RETRY_ATTEMPTS", &c.Retry.Attempts)
	e.duration("GLEANER_RETRY_BASE_DELAY", &c.Retry.BaseDelay)
	e.duration("GLEANER_RETRY_MAX_DELAY", &c.Retry.MaxDelay)

	e.str("GLEANER_EMBEDDING_HOST", &c.AI.EmbeddingHost)
	e.str("GLEANER_EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	e.str("GLEANER_CHAT_HOST", &c.AI.ChatHost)
	e.str("GLEANER_CHAT_MODEL", &c.AI.ChatModel)
	e.str("GLEANER_API_TOKEN", &c.AI.Token)

	e.str("FIRECRAWL_API_KEY", &c.Firecrawl.APIKey)
	e.str("FIRECRAWL_BASE_URL", &c.Firecrawl.BaseURL)

	if len(e.errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(e.errs...))
	}
	return nil
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
