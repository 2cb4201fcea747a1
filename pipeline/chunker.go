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
	"fmt"
	"strconv"

	"github.com/poiesic/gleaner/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// ChunkUnit selects how chunk sizes are measured.
type ChunkUnit string

const (
	UnitCharacters ChunkUnit = "characters"
	UnitTokens     ChunkUnit = "tokens"
)

// ChunkConfig controls document splitting.
type ChunkConfig struct {
	Size    int
	Overlap int
	Unit    ChunkUnit
}

// DefaultChunkConfig returns 1000 character chunks with 200 characters of overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Size: 1000, Overlap: 200, Unit: UnitCharacters}
}

// Validate checks the configuration.
func (c ChunkConfig) Validate() error {
	if c.Size < 1 {
		return fmt.Errorf("%w: size must be positive", ErrInvalidChunking)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap must be in [0, size)", ErrInvalidChunking)
	}
	if c.Unit != UnitCharacters && c.Unit != UnitTokens {
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidChunking, c.Unit)
	}
	return nil
}

// Chunker splits documents into bounded segments.
type Chunker struct {
	splitter textsplitter.TextSplitter
}

// NewChunker creates a chunker for cfg. Token units use the cl100k_base
// encoding.
func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(cfg.Size),
		textsplitter.WithChunkOverlap(cfg.Overlap),
	}
	var splitter textsplitter.TextSplitter
	switch cfg.Unit {
	case UnitTokens:
		splitter = textsplitter.NewTokenSplitter(opts...)
	default:
		splitter = textsplitter.NewRecursiveCharacter(opts...)
	}
	return &Chunker{splitter: splitter}, nil
}

// Split chunks every document. Chunk IDs are derived from the source URI,
// the chunk position and the text, so re-ingesting a source yields the same
// IDs.
func (c *Chunker) Split(docs []core.Document) ([]core.Chunk, error) {
	var chunks []core.Chunk
	for _, doc := range docs {
		parts, err := c.splitter.SplitText(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", doc.SourceURI, err)
		}
		index := 0
		for _, part := range parts {
			if part == "" {
				continue
			}
			meta := make(map[string]string, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["source"] = doc.SourceURI
			meta["title"] = doc.Title
			meta["chunk"] = strconv.Itoa(index)
			chunks = append(chunks, core.Chunk{
				DocID:     core.ChunkID(doc.SourceURI, index, part),
				Index:     index,
				Text:      part,
				SourceURI: doc.SourceURI,
				Title:     doc.Title,
				Metadata:  meta,
			})
			index++
		}
	}
	return chunks, nil
}
