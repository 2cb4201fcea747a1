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

package badger

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
)

// JobStore implements storage.JobStore for BadgerDB.
type JobStore struct {
	backend   *Backend
	ownsDB    bool
	retention storage.Retention
	now       func() time.Time
	logger    *slog.Logger

	// mu guards the retention bookkeeping below.
	mu        sync.Mutex
	count     int
	lastSweep time.Time
	sweeps    int
}

// maxSweepInterval bounds how long expired jobs may linger past RetainFor.
const maxSweepInterval = time.Minute

var (
	_ storage.JobStore  = (*JobStore)(nil)
	_ storage.Recoverer = (*JobStore)(nil)
)

// JobStoreOption configures a JobStore.
type JobStoreOption func(*JobStore) error

// WithRetention overrides the default retention policy.
func WithRetention(r storage.Retention) JobStoreOption {
	return func(s *JobStore) error {
		s.retention = r
		return nil
	}
}

// WithJobLogger sets a custom logger for the store.
func WithJobLogger(logger *slog.Logger) JobStoreOption {
	return func(s *JobStore) error {
		s.logger = logger
		return nil
	}
}

// WithOwnedBackend makes Close also close the backend.
func WithOwnedBackend() JobStoreOption {
	return func(s *JobStore) error {
		s.ownsDB = true
		return nil
	}
}

// NewJobStore creates a JobStore on top of an open backend.
func NewJobStore(backend *Backend, opts ...JobStoreOption) (*JobStore, error) {
	s := &JobStore{
		backend:   backend,
		retention: storage.DefaultRetention(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "badger-job-store")
	count, err := s.countJobs()
	if err != nil {
		return nil, err
	}
	s.count = count
	return s, nil
}

// Create stores a copy of job under a new UUID and indexes it by creation time.
func (s *JobStore) Create(ctx context.Context, job *core.Job) (string, error) {
	id := uuid.NewString()
	stored, err := storage.PrepareCreate(job, id, s.now())
	if err != nil {
		return "", err
	}
	err = s.backend.Update(func(tx *badger.Txn) error {
		if err := tx.Set(makeJobKey(id), storage.MarshalJob(stored)); err != nil {
			return err
		}
		return tx.Set(makeJobDateKey(stored.CreatedAt, id), []byte(id))
	})
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.count++
	if s.sweepDueLocked() {
		if err := s.sweepLocked(); err != nil {
			s.logger.Warn("retention sweep failed", "err", err)
		}
	}
	s.mu.Unlock()
	return id, nil
}

// Get retrieves a single job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*core.Job, bool, error) {
	var job *core.Job
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		job, err = readJob(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return job, job != nil, nil
}

// Update reads, mutates and writes the job inside one transaction. Badger
// detects concurrent writers and the backend retries on conflict.
func (s *JobStore) Update(ctx context.Context, id string, fn func(*core.Job) error) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		current, err := readJob(tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return storage.ErrNotFound
		}
		next, err := storage.ApplyUpdate(current, fn)
		if err != nil {
			return err
		}
		return tx.Set(makeJobKey(id), storage.MarshalJob(next))
	})
}

// List walks the creation index backwards.
func (s *JobStore) List(ctx context.Context, limit, offset int) ([]*core.Job, error) {
	if offset < 0 {
		offset = 0
	}
	var jobs []*core.Job
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefix := []byte(jobDatePrefix)
		skipped := 0
		for iter.Seek(makeJobDateSeekKey()); iter.Valid(); iter.Next() {
			if limit > 0 && len(jobs) >= limit {
				break
			}
			key := iter.Item().Key()
			if !bytes.HasPrefix(key, prefix) {
				break
			}
			if skipped < offset {
				skipped++
				continue
			}
			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			job, err := readJob(tx, string(id))
			if err != nil {
				return err
			}
			if job != nil {
				jobs = append(jobs, job)
			}
		}
		return nil
	})
	return jobs, err
}

// RecoverInterrupted fails every job a previous process left pending or running.
func (s *JobStore) RecoverInterrupted(ctx context.Context) (int, error) {
	var ids []string
	err := s.scan(func(job *core.Job) {
		if !job.Status.Terminal() {
			ids = append(ids, job.ID)
		}
	})
	if err != nil {
		return 0, err
	}
	mark := storage.CancelInterrupted(s.now())
	for _, id := range ids {
		if err := s.Update(ctx, id, mark); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		s.logger.Info("recovered interrupted jobs", "count", len(ids))
	}
	return len(ids), nil
}

// Close closes the backend when the store owns it.
func (s *JobStore) Close() error {
	if s.ownsDB {
		return s.backend.Close()
	}
	return nil
}

// scan visits every job oldest first.
func (s *JobStore) scan(visit func(*core.Job)) error {
	return s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobDatePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			job, err := readJob(tx, string(id))
			if err != nil {
				return err
			}
			if job != nil {
				visit(job)
			}
		}
		return nil
	})
}

// countJobs counts the creation index without reading any values.
func (s *JobStore) countJobs() (int, error) {
	count := 0
	err := s.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobDatePrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// sweepDueLocked reports whether Create should scan for evictions. Under the
// MaxJobs cap a scan only runs once per sweep interval, and only when
// RetainFor is set.
func (s *JobStore) sweepDueLocked() bool {
	if s.retention.MaxJobs > 0 && s.count > s.retention.MaxJobs {
		return true
	}
	if s.retention.RetainFor <= 0 {
		return false
	}
	interval := min(s.retention.RetainFor, maxSweepInterval)
	return s.now().Sub(s.lastSweep) >= interval
}

func (s *JobStore) sweepLocked() error {
	s.sweeps++
	s.lastSweep = s.now()
	var jobs []*core.Job
	if err := s.scan(func(j *core.Job) { jobs = append(jobs, j) }); err != nil {
		return err
	}
	s.count = len(jobs)
	evict := s.retention.Evictions(jobs, s.now())
	if len(evict) == 0 {
		return nil
	}
	byID := make(map[string]*core.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	err := s.backend.Update(func(tx *badger.Txn) error {
		for _, id := range evict {
			if err := tx.Delete(makeJobKey(id)); err != nil {
				return err
			}
			if err := tx.Delete(makeJobDateKey(byID[id].CreatedAt, id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.count -= len(evict)
	s.logger.Debug("evicted jobs", "count", len(evict))
	return nil
}

func readJob(tx *badger.Txn, id string) (*core.Job, error) {
	val, err := readValue(tx, makeJobKey(id))
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalJob(val)
}
