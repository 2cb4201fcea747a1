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

// Package storetest holds the behavioural tests every JobStore backend must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.JobStore

// RunJobStoreTests exercises the JobStore contract against stores built by newStore.
func RunJobStoreTests(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("GetUnknown", func(t *testing.T) { testGetUnknown(t, newStore(t)) })
	t.Run("UpdateLifecycle", func(t *testing.T) { testUpdateLifecycle(t, newStore(t)) })
	t.Run("UpdateAbort", func(t *testing.T) { testUpdateAbort(t, newStore(t)) })
	t.Run("UpdateUnknown", func(t *testing.T) { testUpdateUnknown(t, newStore(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("SnapshotIsolation", func(t *testing.T) { testSnapshotIsolation(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
}

func newJob(prompt string, created time.Time) *core.Job {
	return core.NewJob(core.KindScrape, core.Input{Prompt: prompt, SourceHint: core.HintAuto}, created)
}

func testCreateAndGet(t *testing.T, s storage.JobStore) {
	defer s.Close()
	ctx := context.Background()

	id, err := s.Create(ctx, newJob("scrape https://example.com", time.Now()))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, found, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, core.StatusPending, job.Status)
	assert.Zero(t, job.Progress)
	assert.Equal(t, "scrape https://example.com", job.Input.Prompt)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.Error)

	other, err := s.Create(ctx, newJob("again", time.Now()))
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func testGetUnknown(t *testing.T, s storage.JobStore) {
	defer s.Close()
	job, found, err := s.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, job)
}

func testUpdateLifecycle(t *testing.T, s storage.JobStore) {
	defer s.Close()
	ctx := context.Background()
	now := time.Now()

	id, err := s.Create(ctx, newJob("x", now))
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, id, func(j *core.Job) error { return j.Start(now) }))
	require.NoError(t, s.Update(ctx, id, func(j *core.Job) error { return j.Advance(0.5, now) }))

	err = s.Update(ctx, id, func(j *core.Job) error { return j.Advance(0.25, now) })
	assert.ErrorIs(t, err, core.ErrProgressRegression)

	require.NoError(t, s.Update(ctx, id, func(j *core.Job) error {
		return j.Complete(&core.Result{CollectionName: "scraped_example", DocumentsProcessed: 10}, now)
	}))

	job, found, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.StatusCompleted, job.Status)
	assert.Equal(t, 1.0, job.Progress)
	require.NotNil(t, job.Result)
	assert.Equal(t, 10, job.Result.DocumentsProcessed)
	assert.Nil(t, job.Error)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)

	err = s.Update(ctx, id, func(j *core.Job) error {
		return j.Fail(core.JobError{Kind: core.KindInternal, Message: "late"}, now)
	})
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func testUpdateAbort(t *testing.T, s storage.JobStore) {
	defer s.Close()
	ctx := context.Background()

	id, err := s.Create(ctx, newJob("x", time.Now()))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Update(ctx, id, func(j *core.Job) error {
		j.Progress = 0.9
		return boom
	})
	assert.ErrorIs(t, err, boom)

	job, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, job.Progress, "failed mutator must leave no visible change")
}

func testUpdateUnknown(t *testing.T, s storage.JobStore) {
	defer s.Close()
	err := s.Update(context.Background(), "missing", func(j *core.Job) error { return nil })
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListOrder(t *testing.T, s storage.JobStore) {
	defer s.Close()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Create(ctx, newJob("x", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	jobs, err := s.List(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[4], jobs[0].ID)
	assert.Equal(t, ids[3], jobs[1].ID)
	assert.Equal(t, ids[2], jobs[2].ID)

	jobs, err = s.List(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[1], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[1].ID)
}

func testSnapshotIsolation(t *testing.T, s storage.JobStore) {
	defer s.Close()
	ctx := context.Background()

	id, err := s.Create(ctx, core.NewJob(core.KindLocalUpload, core.Input{Files: []string{"a.txt"}}, time.Now()))
	require.NoError(t, err)

	job, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	job.Status = core.StatusCompleted
	job.Input.Files[0] = "mutated"

	again, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, again.Status)
	assert.Equal(t, "a.txt", again.Input.Files[0])
}

func testConcurrentUpdates(t *testing.T, s storage.JobStore) {
	defer s.Close()
	ctx := context.Background()
	now := time.Now()

	id, err := s.Create(ctx, newJob("x", now))
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, id, func(j *core.Job) error { return j.Start(now) }))

	// Each writer advances progress to a higher step; regressions are rejected
	// by the store, so the final value must be the largest step.
	const writers = 10
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			_ = s.Update(ctx, id, func(j *core.Job) error {
				p := float64(step) / writers
				if p < j.Progress {
					return nil
				}
				return j.Advance(p, now)
			})
		}(i)
	}
	wg.Wait()

	job, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, job.Progress)
	assert.Equal(t, core.StatusRunning, job.Status)
}
