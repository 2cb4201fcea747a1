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

package storage

import (
	"context"
	"time"

	"github.com/poiesic/gleaner/core"
)

// JobStore holds job records. Implementations must be thread-safe and
// hand out deep copies so callers never observe a half-applied update.
type JobStore interface {
	// Create assigns a fresh ID to job, stores it and returns the ID.
	Create(ctx context.Context, job *core.Job) (string, error)

	// Get returns a snapshot of the job. An unknown id yields found=false and a nil job.
	Get(ctx context.Context, id string) (job *core.Job, found bool, err error)

	// Update applies fn to a copy of the job and stores the result atomically.
	// If fn returns an error nothing is written and the error is returned.
	// Returns ErrNotFound if the job does not exist.
	Update(ctx context.Context, id string, fn func(*core.Job) error) error

	// List returns jobs ordered by creation time, most recent first.
	List(ctx context.Context, limit, offset int) ([]*core.Job, error)

	// Close releases resources held by the store.
	Close() error
}

// Recoverer is implemented by stores that outlive the process and may
// contain jobs left unfinished by a previous run.
type Recoverer interface {
	// RecoverInterrupted marks every non-terminal job failed with a
	// cancellation error and returns how many were changed.
	RecoverInterrupted(ctx context.Context) (int, error)
}

// VectorStore persists embedded chunks grouped into named collections.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist yet.
	EnsureCollection(ctx context.Context, name string, hint core.SchemaHint) error

	// Upsert inserts or replaces records keyed by DocID and returns the number written.
	Upsert(ctx context.Context, collection string, records []*core.VectorRecord) (int, error)

	// Search returns up to limit records ordered by similarity, highest first.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]*core.ScoredRecord, error)

	// ListCollections returns every collection with its document count.
	ListCollections(ctx context.Context) ([]core.CollectionInfo, error)

	// CollectionStats returns ErrNotFound for an unknown collection.
	CollectionStats(ctx context.Context, name string) (*core.CollectionStats, error)

	// DeleteCollection removes a collection and its records. Deleting an
	// absent collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Retention bounds how many job records a store keeps.
type Retention struct {
	// MaxJobs caps the number of stored jobs. Zero means unbounded.
	MaxJobs int
	// RetainFor evicts terminal jobs finished longer ago than this. Zero disables it.
	RetainFor time.Duration
}

// DefaultMaxJobs is the job cap used when none is configured.
const DefaultMaxJobs = 1000

// DefaultRetention returns the retention applied by the bundled stores.
func DefaultRetention() Retention {
	return Retention{MaxJobs: DefaultMaxJobs}
}
