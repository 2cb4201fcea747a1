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
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/source"
	"github.com/tmc/langchaingo/documentloaders"
)

const (
	defaultUserAgent    = "gleaner/1.0 (+https://github.com/poiesic/gleaner)"
	defaultMaxBodyBytes = 10 << 20
	defaultHTTPTimeout  = 30 * time.Second
)

// Web fetches each URL of a plan as a single page.
type Web struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
	logger       *slog.Logger
}

var _ Extractor = (*Web)(nil)

// WebOption configures a Web extractor.
type WebOption func(*Web)

// WithHTTPClient sets the client used for page fetches.
func WithHTTPClient(client *http.Client) WebOption {
	return func(w *Web) {
		w.client = client
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) WebOption {
	return func(w *Web) {
		w.userAgent = ua
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) WebOption {
	return func(w *Web) {
		w.maxBodyBytes = n
	}
}

// WithWebLogger sets a custom logger.
func WithWebLogger(logger *slog.Logger) WebOption {
	return func(w *Web) {
		w.logger = logger
	}
}

// NewWeb creates a Web extractor.
func NewWeb(opts ...WebOption) *Web {
	w := &Web{
		client:       &http.Client{Timeout: defaultHTTPTimeout},
		userAgent:    defaultUserAgent,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "web-extractor")
	return w
}

// Extract fetches every URL in plan.
func (w *Web) Extract(ctx context.Context, plan source.Plan) ([]core.Document, error) {
	return collect(ctx, w.logger, plan.URLs, w.fetch)
}

func (w *Web) fetch(ctx context.Context, url string) ([]core.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError(url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBodyBytes))
	if err != nil {
		return nil, core.Transient(fmt.Errorf("failed to read body: %w", err))
	}

	meta := map[string]string{"url": url}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "" {
		meta["content_type"] = mediaType
	}

	if mediaType == "" || strings.Contains(mediaType, "html") {
		title := pageTitle(body)
		loaded, err := documentloaders.NewHTML(bytes.NewReader(body)).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to parse html: %w", err)
		}
		return fromSchema(loaded, url, title, meta), nil
	}
	if strings.HasPrefix(mediaType, "text/") {
		loaded, err := documentloaders.NewText(bytes.NewReader(body)).Load(ctx)
		if err != nil {
			return nil, err
		}
		return fromSchema(loaded, url, url, meta), nil
	}
	return nil, fmt.Errorf("unsupported content type %q", mediaType)
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
