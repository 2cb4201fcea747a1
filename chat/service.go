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


// Package chat answers questions over ingested collections and explains
// vector store configuration requests.
package chat

import (
	"context"
	"log/slog"

	"github.com/poiesic/gleaner/ai"
	"github.com/poiesic/gleaner/search"
	"github.com/poiesic/gleaner/storage"
)

// DefaultContextSize is the number of chunks put into the answer prompt.
const DefaultContextSize = 5

// Service turns prompts into chat model calls.
type Service struct {
	searcher    *search.Searcher
	store       storage.VectorStore
	model       ai.ChatModel
	contextSize int
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithContextSize sets how many chunks are retrieved per question.
func WithContextSize(n int) Option {
	return func(s *Service) error {
		if n > 0 {
			s.contextSize = n
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a chat service.
func NewService(searcher *search.Searcher, store storage.VectorStore, model ai.ChatModel, opts ...Option) (*Service, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if model == nil {
		return nil, ErrChatModelRequired
	}
	s := &Service{
		searcher:    searcher,
		store:       store,
		model:       model,
		contextSize: DefaultContextSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "chat")
	return s, nil
}

// Answer replies to question using the most relevant chunks of collection as
// context. Without a collection the model answers with no context.
func (s *Service) Answer(ctx context.Context, question, collection string) (string, error) {
	var system string
	if collection == "" {
		system = answerPrompt(nil)
	} else {
		hits, err := s.searcher.FindSimilar(ctx, collection, question, s.contextSize)
		if err != nil {
			return "", err
		}
		s.logger.Debug("retrieved context", "collection", collection, "hits", len(hits))
		system = answerPrompt(hits)
	}

	response, err := s.model.Generate(ctx, system, question)
	if err != nil {
		s.logger.Error("error generating chat response", "err", err)
		return "", err
	}
	s.logger.Info("generated chat response", "collection", collection)
	return response, nil
}

// Configure explains how to satisfy a configuration request given the
// current collections.
func (s *Service) Configure(ctx context.Context, request string) (string, error) {
	infos, err := s.store.ListCollections(ctx)
	if err != nil {
		return "", err
	}
	response, err := s.model.Generate(ctx, configurePrompt(infos), request)
	if err != nil {
		s.logger.Error("error generating config response", "err", err)
		return "", err
	}
	s.logger.Info("generated config response", "collections", len(infos))
	return response, nil
}
