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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/gleaner/ai"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/extract"
	"github.com/poiesic/gleaner/source"
	"github.com/poiesic/gleaner/storage"
)

// Stage names.
const (
	StageResolve   = "resolve"
	StageExtract   = "extract"
	StageEmbed     = "embed"
	StageUpsert    = "upsert"
	StageAnswer    = "answer"
	StageConfigure = "configure"
)

// Responder answers chat and configuration prompts.
type Responder interface {
	Answer(ctx context.Context, question, collection string) (string, error)
	Configure(ctx context.Context, request string) (string, error)
}

// ResolveStage turns the prompt and hint into a source plan.
func ResolveStage(resolver *source.Resolver) Stage {
	return NewStage(StageResolve, 1, func(ctx context.Context, a *Artifact) (*Artifact, error) {
		plan, err := resolver.Plan(a.Input.SourceHint, a.Input.Prompt)
		if err != nil {
			return a, err
		}
		a.Plan = plan
		return a, nil
	})
}

// ExtractStage fetches the documents of the plan, retrying transient failures.
// On a partial failure the documents extracted so far stay on the artifact.
func ExtractStage(extractor extract.Extractor, policy Policy, logger *slog.Logger) Stage {
	return NewStage(StageExtract, 1, func(ctx context.Context, a *Artifact) (*Artifact, error) {
		var docs []core.Document
		err := Retry(ctx, policy, func(ctx context.Context) error {
			var err error
			docs, err = extractor.Extract(ctx, a.Plan)
			return err
		})
		a.Documents = docs
		if err != nil {
			var partial *extract.PartialError
			if errors.As(err, &partial) {
				logger.Warn("extraction incomplete", "job", a.JobID, "extracted", partial.Extracted)
			}
			return a, core.NewStageError(core.KindExtraction, err)
		}
		if len(docs) == 0 {
			return a, core.NewStageError(core.KindExtraction, extract.ErrNoDocuments)
		}
		logger.Info("extracted documents", "job", a.JobID, "plan", a.Plan.String(), "documents", len(docs))
		return a, nil
	})
}

// EmbedStage chunks the documents and embeds the chunks in batches.
func EmbedStage(chunker *Chunker, embedder ai.Embedder, batchSize int, policy Policy, logger *slog.Logger) Stage {
	return NewStage(StageEmbed, 1, func(ctx context.Context, a *Artifact) (*Artifact, error) {
		chunks, err := chunker.Split(a.Documents)
		if err != nil {
			return a, core.NewStageError(core.KindEmbedding, err)
		}
		if len(chunks) == 0 {
			return a, core.NewStageError(core.KindEmbedding, ErrNoChunks)
		}

		for start := 0; start < len(chunks); start += batchSize {
			end := min(start+batchSize, len(chunks))
			batch := chunks[start:end]
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}

			var vectors [][]float32
			err := Retry(ctx, policy, func(ctx context.Context) error {
				var err error
				vectors, err = embedder.EmbedTexts(ctx, texts)
				return err
			})
			if err != nil {
				return a, core.NewStageError(core.KindEmbedding, err)
			}
			if len(vectors) != len(batch) {
				return a, core.NewStageError(core.KindEmbedding,
					fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, len(batch), len(vectors)))
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
			logger.Debug("embedded batch", "job", a.JobID, "from", start, "to", end, "total", len(chunks))
		}

		a.Chunks = chunks
		a.Dimension = len(chunks[0].Vector)
		return a, nil
	})
}

// UpsertStage writes the embedded chunks to the target collection, creating
// it first if needed.
func UpsertStage(store storage.VectorStore, policy Policy, now nowFunc, logger *slog.Logger) Stage {
	return NewStage(StageUpsert, 1, func(ctx context.Context, a *Artifact) (*Artifact, error) {
		if a.Collection == "" {
			a.Collection = CollectionName(a.Kind, a.Input, a.Plan, now())
		}
		hint := core.SchemaHint{
			Dimension:   a.Dimension,
			Description: CollectionDescription(a.Kind, a.Input),
		}

		err := Retry(ctx, policy, func(ctx context.Context) error {
			return store.EnsureCollection(ctx, a.Collection, hint)
		})
		if err != nil {
			return a, core.NewStageError(core.KindUpsert, err)
		}

		records := make([]*core.VectorRecord, len(a.Chunks))
		for i, c := range a.Chunks {
			records[i] = &core.VectorRecord{
				DocID:    c.DocID,
				Vector:   c.Vector,
				Text:     c.Text,
				Metadata: c.Metadata,
			}
		}
		var written int
		err = Retry(ctx, policy, func(ctx context.Context) error {
			var err error
			written, err = store.Upsert(ctx, a.Collection, records)
			return err
		})
		if err != nil {
			return a, core.NewStageError(core.KindUpsert, err)
		}
		a.Upserted = written
		logger.Info("upserted chunks", "job", a.JobID, "collection", a.Collection, "records", written)
		return a, nil
	})
}

// AnswerStage answers a chat question against the requested collection.
func AnswerStage(responder Responder, policy Policy) Stage {
	return NewStage(StageAnswer, 1, func(ctx context.Context, a *Artifact) (*Artifact, error) {
		var response string
		err := Retry(ctx, policy, func(ctx context.Context) error {
			var err error
			response, err = responder.Answer(ctx, a.Input.Prompt, a.Input.Collection)
			return err
		})
		if err != nil {
			return a, core.NewStageError(core.KindChat, err)
		}
		a.Response = response
		return a, nil
	})
}

// ConfigureStage answers a vector store configuration request.
func ConfigureStage(responder Responder, policy Policy) Stage {
	return NewStage(StageConfigure, 1, func(ctx context.Context, a *Artifact) (*Artifact, error) {
		var response string
		err := Retry(ctx, policy, func(ctx context.Context) error {
			var err error
			response, err = responder.Configure(ctx, a.Input.Prompt)
			return err
		})
		if err != nil {
			return a, core.NewStageError(core.KindChat, err)
		}
		a.Response = response
		return a, nil
	})
}
