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

package core

import (
	"math"
	"strconv"
	"time"
)

// Document is one unit of raw text produced by a content extractor.
type Document struct {
	Text      string
	SourceURI string
	Title     string
	Metadata  map[string]string
}

// Chunk is a bounded segment of a document, optionally carrying its embedding.
type Chunk struct {
	DocID     ID
	Index     int
	Text      string
	SourceURI string
	Title     string
	Metadata  map[string]string
	Vector    []float32
}

// ChunkID derives the stable identifier of a chunk so that re-ingesting the
// same content produces the same record.
func ChunkID(sourceURI string, index int, text string) ID {
	return IDFromContent(sourceURI + "#" + strconv.Itoa(index) + "\x00" + text)
}

// VectorRecord is what a vector store persists for one chunk.
type VectorRecord struct {
	DocID     ID
	Vector    []float32
	Text      string
	Metadata  map[string]string
	UpdatedAt time.Time
}

// ScoredRecord is a vector search hit.
type ScoredRecord struct {
	Record *VectorRecord
	Score  float32
}

// SchemaHint is used when a collection has to be created on first write.
type SchemaHint struct {
	Dimension   int
	Description string
}

// Collection describes a named group of embedded documents.
type Collection struct {
	Name        string
	Description string
	Dimension   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CollectionInfo is one entry in a collection listing.
type CollectionInfo struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	DocumentCount int    `json:"documentCount"`
}

// CollectionStats summarises a single collection.
type CollectionStats struct {
	Name        string    `json:"name"`
	TotalCount  int       `json:"totalCount"`
	Dimension   int       `json:"dimension"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// DotProduct calculates the dot product of two vectors, truncated to the shorter one.
func DotProduct(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either is a zero vector.
func CosineSimilarity(a, b []float32) float32 {
	var na, nb float32
	for _, v := range a {
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return DotProduct(a, b) / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
}
