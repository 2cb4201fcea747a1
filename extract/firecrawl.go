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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/source"
)

const (
	DefaultFirecrawlURL   = "https://api.firecrawl.dev"
	defaultCrawlLimit     = 10
	defaultPollInterval   = 2 * time.Second
	defaultCrawlTimeout   = 5 * time.Minute
	firecrawlErrBodyBytes = 1024
)

// Firecrawl extracts pages through the Firecrawl v1 REST API. Remote crawl
// plans scrape each URL; advanced crawl plans start a crawl job and poll it
// until it finishes.
type Firecrawl struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	crawlLimit   int
	pollInterval time.Duration
	crawlTimeout time.Duration
	logger       *slog.Logger
}

var _ Extractor = (*Firecrawl)(nil)

// FirecrawlOption configures a Firecrawl extractor.
type FirecrawlOption func(*Firecrawl)

// WithAPIKey sets the Firecrawl API key.
func WithAPIKey(key string) FirecrawlOption {
	return func(f *Firecrawl) {
		f.apiKey = key
	}
}

// WithBaseURL points the client at a different Firecrawl deployment.
func WithBaseURL(url string) FirecrawlOption {
	return func(f *Firecrawl) {
		f.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithCrawlLimit caps the number of pages a crawl job may visit.
func WithCrawlLimit(n int) FirecrawlOption {
	return func(f *Firecrawl) {
		f.crawlLimit = n
	}
}

// WithPollInterval sets how often a running crawl job is checked.
func WithPollInterval(d time.Duration) FirecrawlOption {
	return func(f *Firecrawl) {
		f.pollInterval = d
	}
}

// WithCrawlTimeout bounds the total time spent waiting for one crawl job.
func WithCrawlTimeout(d time.Duration) FirecrawlOption {
	return func(f *Firecrawl) {
		f.crawlTimeout = d
	}
}

// WithFirecrawlHTTPClient sets the HTTP client.
func WithFirecrawlHTTPClient(client *http.Client) FirecrawlOption {
	return func(f *Firecrawl) {
		f.client = client
	}
}

// WithFirecrawlLogger sets a custom logger.
func WithFirecrawlLogger(logger *slog.Logger) FirecrawlOption {
	return func(f *Firecrawl) {
		f.logger = logger
	}
}

// NewFirecrawl creates a Firecrawl extractor. A missing API key is only
// reported when Extract is called.
func NewFirecrawl(opts ...FirecrawlOption) *Firecrawl {
	f := &Firecrawl{
		client:       &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:      DefaultFirecrawlURL,
		crawlLimit:   defaultCrawlLimit,
		pollInterval: defaultPollInterval,
		crawlTimeout: defaultCrawlTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "firecrawl-extractor")
	return f
}

type firecrawlPage struct {
	Markdown string `json:"markdown"`
	Metadata struct {
		Title     string `json:"title"`
		SourceURL string `json:"sourceURL"`
		URL       string `json:"url"`
	} `json:"metadata"`
}

type scrapeResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Data    firecrawlPage `json:"data"`
}

type crawlStartResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	ID      string `json:"id"`
}

type crawlStatusResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   []firecrawlPage `json:"data"`
	Next   string          `json:"next"`
}

// Extract scrapes or crawls every URL in plan.
func (f *Firecrawl) Extract(ctx context.Context, plan source.Plan) ([]core.Document, error) {
	if f.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	fetch := f.scrape
	if plan.Kind == source.KindAdvancedCrawl {
		fetch = f.crawl
	}
	return collect(ctx, f.logger, plan.URLs, fetch)
}

func (f *Firecrawl) scrape(ctx context.Context, url string) ([]core.Document, error) {
	var resp scrapeResponse
	err := f.do(ctx, http.MethodPost, f.baseURL+"/v1/scrape", map[string]any{
		"url":     url,
		"formats": []string{"markdown"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: scrape %s: %s", ErrUnexpectedPayload, url, resp.Error)
	}
	return pagesToDocuments(url, resp.Data), nil
}

func (f *Firecrawl) crawl(ctx context.Context, url string) ([]core.Document, error) {
	var start crawlStartResponse
	err := f.do(ctx, http.MethodPost, f.baseURL+"/v1/crawl", map[string]any{
		"url":           url,
		"limit":         f.crawlLimit,
		"scrapeOptions": map[string]any{"formats": []string{"markdown"}},
	}, &start)
	if err != nil {
		return nil, err
	}
	if !start.Success || start.ID == "" {
		return nil, fmt.Errorf("%w: crawl %s: %s", ErrUnexpectedPayload, url, start.Error)
	}
	f.logger.Info("crawl started", "url", url, "crawl_id", start.ID)

	ctx, cancel := context.WithTimeout(ctx, f.crawlTimeout)
	defer cancel()

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	statusURL := f.baseURL + "/v1/crawl/" + start.ID
	for {
		var status crawlStatusResponse
		if err := f.do(ctx, http.MethodGet, statusURL, nil, &status); err != nil {
			return nil, err
		}
		switch status.Status {
		case "completed":
			pages := status.Data
			for next := status.Next; next != ""; {
				var more crawlStatusResponse
				if err := f.do(ctx, http.MethodGet, next, nil, &more); err != nil {
					return nil, err
				}
				pages = append(pages, more.Data...)
				next = more.Next
			}
			f.logger.Info("crawl completed", "url", url, "pages", len(pages))
			return pagesToDocuments(url, pages...), nil
		case "failed", "cancelled":
			return nil, fmt.Errorf("%w: %s: %s %s", ErrCrawlFailed, url, status.Status, status.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func pagesToDocuments(requested string, pages ...firecrawlPage) []core.Document {
	docs := make([]core.Document, 0, len(pages))
	for _, p := range pages {
		text := strings.TrimSpace(p.Markdown)
		if text == "" {
			continue
		}
		uri := p.Metadata.SourceURL
		if uri == "" {
			uri = p.Metadata.URL
		}
		if uri == "" {
			uri = requested
		}
		docs = append(docs, core.Document{
			Text:      text,
			SourceURI: uri,
			Title:     p.Metadata.Title,
			Metadata: map[string]string{
				"source":  uri,
				"url":     requested,
				"scraper": "firecrawl",
			},
		})
	}
	return docs
}

func (f *Firecrawl) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, firecrawlErrBodyBytes))
		f.logger.Debug("firecrawl error response", "url", url, "status", resp.StatusCode, "body", string(msg))
		return statusError(url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	return nil
}
