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
	"strings"
	"testing"

	"github.com/poiesic/gleaner/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_SplitsWithinSize(t *testing.T) {
	c, err := NewChunker(ChunkConfig{Size: 100, Overlap: 20, Unit: UnitCharacters})
	require.NoError(t, err)

	text := strings.Repeat("The pipeline splits long documents into bounded chunks. ", 20)
	chunks, err := c.Split([]core.Document{{Text: text, SourceURI: "https://example.com", Title: "Doc"}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 100)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, core.ChunkID("https://example.com", i, ch.Text), ch.DocID)
		assert.Equal(t, "Doc", ch.Metadata["title"])
		assert.Equal(t, "https://example.com", ch.Metadata["source"])
	}
}

func TestChunker_StableIDs(t *testing.T) {
	c, err := NewChunker(DefaultChunkConfig())
	require.NoError(t, err)
	docs := []core.Document{{Text: "same text", SourceURI: "a"}, {Text: "same text", SourceURI: "b"}}

	first, err := c.Split(docs)
	require.NoError(t, err)
	second, err := c.Split(docs)
	require.NoError(t, err)

	assert.Equal(t, first[0].DocID, second[0].DocID)
	assert.NotEqual(t, first[0].DocID, first[1].DocID)
}

func TestChunkConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ChunkConfig
		ok   bool
	}{
		{"default", DefaultChunkConfig(), true},
		{"tokens", ChunkConfig{Size: 256, Overlap: 32, Unit: UnitTokens}, true},
		{"zero size", ChunkConfig{Size: 0, Unit: UnitCharacters}, false},
		{"overlap too large", ChunkConfig{Size: 10, Overlap: 10, Unit: UnitCharacters}, false},
		{"negative overlap", ChunkConfig{Size: 10, Overlap: -1, Unit: UnitCharacters}, false},
		{"unknown unit", ChunkConfig{Size: 10, Unit: "words"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidChunking)
			}
		})
	}
}
