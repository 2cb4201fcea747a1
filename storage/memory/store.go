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

// Package memory provides an in-process JobStore.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
)

// JobStore keeps jobs in a map guarded by a RWMutex, with a creation-ordered
// index used for listing and eviction.
type JobStore struct {
	mu        sync.RWMutex
	jobs      map[string]*core.Job
	order     []string
	retention storage.Retention
	now       func() time.Time
	closed    bool
	logger    *slog.Logger
}

var _ storage.JobStore = (*JobStore)(nil)

// Option configures a JobStore.
type Option func(*JobStore) error

// WithRetention overrides the default retention policy.
func WithRetention(r storage.Retention) Option {
	return func(s *JobStore) error {
		s.retention = r
		return nil
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *JobStore) error {
		s.logger = logger
		return nil
	}
}

// WithClock replaces the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *JobStore) error {
		s.now = now
		return nil
	}
}

// NewJobStore creates an empty in-memory JobStore.
func NewJobStore(opts ...Option) (*JobStore, error) {
	s := &JobStore{
		jobs:      make(map[string]*core.Job),
		retention: storage.DefaultRetention(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "memory-job-store")
	return s, nil
}

// Create stores a copy of job under a new UUID.
func (s *JobStore) Create(ctx context.Context, job *core.Job) (string, error) {
	id := uuid.NewString()
	stored, err := storage.PrepareCreate(job, id, s.now())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", storage.ErrStorageClosed
	}
	s.jobs[id] = stored
	s.order = append(s.order, id)
	s.evictLocked()
	return id, nil
}

// Get returns a deep copy of the job.
func (s *JobStore) Get(ctx context.Context, id string) (*core.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, storage.ErrStorageClosed
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	return job.Clone(), true, nil
}

// Update applies fn under the write lock.
func (s *JobStore) Update(ctx context.Context, id string, fn func(*core.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	current, ok := s.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	next, err := storage.ApplyUpdate(current, fn)
	if err != nil {
		return err
	}
	s.jobs[id] = next
	if next.Status.Terminal() && s.retention.RetainFor > 0 {
		s.evictLocked()
	}
	return nil
}

// List returns copies of the most recent jobs first.
func (s *JobStore) List(ctx context.Context, limit, offset int) ([]*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	start, end := storage.Page(len(s.order), limit, offset)
	out := make([]*core.Job, 0, end-start)
	for i := start; i < end; i++ {
		id := s.order[len(s.order)-1-i]
		out = append(out, s.jobs[id].Clone())
	}
	return out, nil
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close drops all jobs.
func (s *JobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.jobs = nil
	s.order = nil
	return nil
}

func (s *JobStore) evictLocked() {
	if s.retention.MaxJobs <= 0 && s.retention.RetainFor <= 0 {
		return
	}
	if s.retention.RetainFor <= 0 && len(s.order) <= s.retention.MaxJobs {
		return
	}
	ordered := make([]*core.Job, 0, len(s.order))
	for _, id := range s.order {
		ordered = append(ordered, s.jobs[id])
	}
	evict := s.retention.Evictions(ordered, s.now())
	if len(evict) == 0 {
		return
	}
	drop := make(map[string]bool, len(evict))
	for _, id := range evict {
		drop[id] = true
		delete(s.jobs, id)
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.order = kept
	s.logger.Debug("evicted jobs", "count", len(evict), "remaining", len(s.order))
}
