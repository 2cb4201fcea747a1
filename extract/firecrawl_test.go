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


package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFirecrawlServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/scrape", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"markdown": "# Hello",
				"metadata": map[string]any{"title": "Hello", "sourceURL": body["url"]},
			},
		})
	})
	mux.HandleFunc("/v1/crawl", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "id": "job-1"})
	})
	mux.HandleFunc("/v1/crawl/job-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			json.NewEncoder(w).Encode(map[string]any{"status": "scraping"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"data": []map[string]any{
				{"markdown": "page one", "metadata": map[string]any{"title": "One", "sourceURL": "https://example.com/1"}},
				{"markdown": "", "metadata": map[string]any{"sourceURL": "https://example.com/empty"}},
				{"markdown": "page two", "metadata": map[string]any{"title": "Two", "sourceURL": "https://example.com/2"}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestFirecrawl_Scrape(t *testing.T) {
	srv, _ := newFirecrawlServer(t)
	f := NewFirecrawl(WithAPIKey("fc-test"), WithBaseURL(srv.URL), WithFirecrawlHTTPClient(srv.Client()))

	docs, err := f.Extract(context.Background(), source.RemoteCrawl("https://example.com"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "# Hello", docs[0].Text)
	assert.Equal(t, "Hello", docs[0].Title)
	assert.Equal(t, "https://example.com", docs[0].SourceURI)
	assert.Equal(t, "firecrawl", docs[0].Metadata["scraper"])
}

func TestFirecrawl_Crawl(t *testing.T) {
	srv, polls := newFirecrawlServer(t)
	f := NewFirecrawl(
		WithAPIKey("fc-test"),
		WithBaseURL(srv.URL),
		WithFirecrawlHTTPClient(srv.Client()),
		WithPollInterval(10*time.Millisecond),
	)

	docs, err := f.Extract(context.Background(), source.AdvancedCrawl("https://example.com"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://example.com/1", docs[0].SourceURI)
	assert.Equal(t, "Two", docs[1].Title)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestFirecrawl_MissingKey(t *testing.T) {
	f := NewFirecrawl()
	_, err := f.Extract(context.Background(), source.AdvancedCrawl("https://example.com"))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.False(t, core.IsRetryable(err))
}

func TestFirecrawl_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	f := NewFirecrawl(WithAPIKey("fc-test"), WithBaseURL(srv.URL), WithFirecrawlHTTPClient(srv.Client()))
	_, err := f.Extract(context.Background(), source.RemoteCrawl("https://example.com"))
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
}
