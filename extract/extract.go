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


// Package extract fetches raw documents for a resolved source plan.
//
// Each extractor handles one plan kind: Web fetches pages over HTTP, Firecrawl
// drives the Firecrawl crawling service, and Local reads files from disk.
// Router dispatches a plan to the matching extractor.
//
// Extractors make a single attempt per target. Retrying transient failures is
// left to the caller; errors that are safe to retry are marked with
// core.Transient.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/source"
	"github.com/tmc/langchaingo/schema"
)

// Extractor returns the documents a plan points at.
type Extractor interface {
	Extract(ctx context.Context, plan source.Plan) ([]core.Document, error)
}

// fetchFunc extracts the documents of a single target.
type fetchFunc func(ctx context.Context, target string) ([]core.Document, error)

// collect runs fetch over every target. Failing targets are logged and
// skipped; if any failed, the documents gathered so far are returned with a
// PartialError, or with the joined error when nothing was extracted.
func collect(ctx context.Context, logger *slog.Logger, targets []string, fetch fetchFunc) ([]core.Document, error) {
	var (
		docs []core.Document
		errs []error
	)
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		got, err := fetch(ctx, target)
		docs = append(docs, got...)
		if err != nil {
			if core.IsCancelled(err) {
				return docs, err
			}
			logger.Warn("failed to extract target", "target", target, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		logger.Debug("extracted target", "target", target, "documents", len(got))
	}

	if len(errs) == 0 {
		return docs, nil
	}
	err := errors.Join(errs...)
	if len(docs) == 0 {
		return nil, err
	}
	return docs, &PartialError{Extracted: len(docs), Err: err}
}

// fromSchema converts loader output into documents for one source.
func fromSchema(in []schema.Document, sourceURI, title string, extra map[string]string) []core.Document {
	out := make([]core.Document, 0, len(in))
	for _, d := range in {
		text := strings.TrimSpace(d.PageContent)
		if text == "" {
			continue
		}
		meta := make(map[string]string, len(d.Metadata)+len(extra)+1)
		for k, v := range d.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		for k, v := range extra {
			meta[k] = v
		}
		meta["source"] = sourceURI
		out = append(out, core.Document{
			Text:      text,
			SourceURI: sourceURI,
			Title:     title,
			Metadata:  meta,
		})
	}
	return out
}

// Router dispatches plans by kind.
type Router struct {
	extractors map[source.Kind]Extractor
}

var _ Extractor = (*Router)(nil)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithExtractor registers e for plans of kind.
func WithExtractor(kind source.Kind, e Extractor) RouterOption {
	return func(r *Router) {
		r.extractors[kind] = e
	}
}

// NewRouter creates a router with the given extractors.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{extractors: make(map[source.Kind]Extractor)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extract forwards plan to the extractor registered for its kind.
func (r *Router) Extract(ctx context.Context, plan source.Plan) ([]core.Document, error) {
	e, ok := r.extractors[plan.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlan, plan.Kind)
	}
	return e.Extract(ctx, plan)
}
