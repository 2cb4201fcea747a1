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

// Package redis implements a JobStore on Redis so several gleaner processes
// can share job state.
//
// Every store that creates jobs holds a lease under <prefix>owner:<instance>
// and refreshes it while open. Each unfinished job records the instance that
// created it, so RecoverInterrupted only fails jobs whose owner's lease has
// lapsed. Processes that only read jobs never take a lease.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "gleaner:"
	// maxWatchRetries bounds how often an optimistic update is retried.
	maxWatchRetries = 64
	// DefaultLeaseTTL is how long an owner lease survives without a refresh.
	DefaultLeaseTTL = 30 * time.Second
)

// JobStore keeps each job as a binary value under <prefix>job:<id> and
// indexes creation time in the sorted set <prefix>jobs.
type JobStore struct {
	client    *redis.Client
	ownsConn  bool
	prefix    string
	retention storage.Retention
	instance  string
	leaseTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	leaseOnce sync.Once
	leased    atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

var (
	_ storage.JobStore  = (*JobStore)(nil)
	_ storage.Recoverer = (*JobStore)(nil)
)

// Option configures a JobStore.
type Option func(*JobStore) error

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(s *JobStore) error {
		s.prefix = prefix
		return nil
	}
}

// WithRetention overrides the default retention policy. RetainFor is applied
// as a key expiry once a job turns terminal.
func WithRetention(r storage.Retention) Option {
	return func(s *JobStore) error {
		s.retention = r
		return nil
	}
}

// WithLeaseTTL sets how long the owner lease outlives its last refresh.
// The lease is refreshed every third of ttl.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(s *JobStore) error {
		if ttl <= 0 {
			return fmt.Errorf("lease ttl must be positive, got %v", ttl)
		}
		s.leaseTTL = ttl
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

// NewJobStore wraps an existing client. The caller keeps ownership of it.
func NewJobStore(client *redis.Client, opts ...Option) (*JobStore, error) {
	s := &JobStore{
		client:    client,
		prefix:    defaultKeyPrefix,
		retention: storage.DefaultRetention(),
		instance:  uuid.NewString(),
		leaseTTL:  DefaultLeaseTTL,
		now:       time.Now,
		logger:    slog.Default(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "redis-job-store", "instance", s.instance)
	return s, nil
}

// Dial connects to addr, verifies the connection and returns a store that
// closes the client on Close.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*JobStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	s, err := NewJobStore(client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.ownsConn = true
	return s, nil
}

func (s *JobStore) jobKey(id string) string         { return s.prefix + "job:" + id }
func (s *JobStore) indexKey() string                { return s.prefix + "jobs" }
func (s *JobStore) ownersKey() string               { return s.prefix + "owners" }
func (s *JobStore) leaseKey(instance string) string { return s.prefix + "owner:" + instance }

// Instance identifies this store's owner lease.
func (s *JobStore) Instance() string { return s.instance }

// Create stores job under a new UUID. SetNX guards against the
// vanishingly unlikely ID collision.
func (s *JobStore) Create(ctx context.Context, job *core.Job) (string, error) {
	id := uuid.NewString()
	stored, err := storage.PrepareCreate(job, id, s.now())
	if err != nil {
		return "", err
	}
	ok, err := s.client.SetNX(ctx, s.jobKey(id), storage.MarshalJob(stored), 0).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("job id %s already exists", id)
	}
	// The owner and index entries land together, so recovery never sees an
	// indexed job without its owner.
	s.leaseOnce.Do(s.startLease)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.leaseKey(s.instance), s.now().UTC().Format(time.RFC3339Nano), s.leaseTTL)
		pipe.HSet(ctx, s.ownersKey(), id, s.instance)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(stored.CreatedAt.UnixMicro()),
			Member: id,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := s.enforceMaxJobs(ctx); err != nil {
		s.logger.Warn("retention sweep failed", "err", err)
	}
	return id, nil
}

// Get retrieves a single job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*core.Job, bool, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	job, err := storage.UnmarshalJob(data)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Update runs fn inside WATCH/MULTI and retries when another writer changed
// the job between the read and the write.
func (s *JobStore) Update(ctx context.Context, id string, fn func(*core.Job) error) error {
	key := s.jobKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := storage.UnmarshalJob(data)
		if err != nil {
			return err
		}
		next, err := storage.ApplyUpdate(current, fn)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, storage.MarshalJob(next), 0)
			if next.Status.Terminal() {
				pipe.HDel(ctx, s.ownersKey(), id)
				if s.retention.RetainFor > 0 {
					pipe.Expire(ctx, key, s.retention.RetainFor)
				}
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("optimistic update conflict, retrying", "job", id, "attempt", attempt+1)
	}
	return storage.ErrTooManyConflicts
}

// List reads the index newest first. Index entries whose job key expired are
// pruned as they are found and the page is refilled from further down.
func (s *JobStore) List(ctx context.Context, limit, offset int) ([]*core.Job, error) {
	if offset < 0 {
		offset = 0
	}
	var jobs []*core.Job
	for {
		start := int64(offset + len(jobs))
		stop := int64(-1)
		if limit > 0 {
			stop = int64(offset + limit - 1)
		}
		page, expired, err := s.readPage(ctx, start, stop)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, page...)
		if len(expired) == 0 {
			break
		}
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			s.logger.Warn("pruning expired index entries failed", "err", err)
			break
		}
		if limit <= 0 || len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

// readPage loads the jobs at index ranks start..stop, newest first, and
// returns the ids whose job key has expired.
func (s *JobStore) readPage(ctx context.Context, start, stop int64) ([]*core.Job, []any, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, stop).Result()
	if err != nil || len(ids) == 0 {
		return nil, nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}

	jobs := make([]*core.Job, 0, len(values))
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		job, err := storage.UnmarshalJob([]byte(str))
		if err != nil {
			return nil, nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, expired, nil
}

// RecoverInterrupted fails every unfinished job whose owner no longer holds
// a lease. Jobs owned by a live store, this one included, are left alone.
func (s *JobStore) RecoverInterrupted(ctx context.Context) (int, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	owners, err := s.client.HGetAll(ctx, s.ownersKey()).Result()
	if err != nil {
		return 0, err
	}
	alive := make(map[string]bool)
	mark := storage.CancelInterrupted(s.now())
	recovered := 0
	for _, id := range ids {
		job, found, err := s.Get(ctx, id)
		if err != nil {
			return recovered, err
		}
		if !found || job.Status.Terminal() {
			continue
		}
		if owner := owners[id]; owner != "" {
			live, err := s.leaseAlive(ctx, owner, alive)
			if err != nil {
				return recovered, err
			}
			if live {
				continue
			}
		}
		err = s.Update(ctx, id, mark)
		if errors.Is(err, core.ErrInvalidTransition) {
			// finished concurrently
			continue
		}
		if err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("recovered interrupted jobs", "count", recovered)
	}
	return recovered, nil
}

// leaseAlive reports whether owner's lease exists, caching answers in seen.
func (s *JobStore) leaseAlive(ctx context.Context, owner string, seen map[string]bool) (bool, error) {
	if owner == s.instance {
		return true, nil
	}
	if live, ok := seen[owner]; ok {
		return live, nil
	}
	n, err := s.client.Exists(ctx, s.leaseKey(owner)).Result()
	if err != nil {
		return false, err
	}
	seen[owner] = n > 0
	return n > 0, nil
}

// startLease refreshes the owner lease until Close.
func (s *JobStore) startLease() {
	s.leased.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.leaseTTL/3)
				err := s.client.Set(ctx, s.leaseKey(s.instance), s.now().UTC().Format(time.RFC3339Nano), s.leaseTTL).Err()
				cancel()
				if err != nil {
					s.logger.Warn("refreshing owner lease failed", "err", err)
				}
			}
		}
	}()
}

// Close releases the owner lease and closes the client if the store dialed it.
// Unfinished jobs this store created become recoverable by other stores.
func (s *JobStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		if !s.leased.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.Del(ctx, s.leaseKey(s.instance)).Err(); err != nil {
			s.logger.Warn("releasing owner lease failed", "err", err)
		}
	})
	if s.ownsConn {
		return s.client.Close()
	}
	return nil
}

// enforceMaxJobs drops the oldest terminal jobs once the index exceeds MaxJobs.
func (s *JobStore) enforceMaxJobs(ctx context.Context) error {
	if s.retention.MaxJobs <= 0 {
		return nil
	}
	count, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return err
	}
	if count <= int64(s.retention.MaxJobs) {
		return nil
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	jobs := make([]*core.Job, 0, len(ids))
	for _, id := range ids {
		job, found, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			// expired; counts as already evicted
			job = &core.Job{ID: id, Status: core.StatusCompleted}
		}
		jobs = append(jobs, job)
	}
	evict := storage.Retention{MaxJobs: s.retention.MaxJobs}.Evictions(jobs, s.now())
	if len(evict) == 0 {
		return nil
	}
	members := make([]any, len(evict))
	keys := make([]string, len(evict))
	for i, id := range evict {
		members[i] = id
		keys[i] = s.jobKey(id)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.indexKey(), members...)
		pipe.HDel(ctx, s.ownersKey(), evict...)
		return nil
	})
	return err
}
