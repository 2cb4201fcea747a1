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


package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/pipeline"
	"github.com/poiesic/gleaner/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageFn func(ctx context.Context, a *pipeline.Artifact) (*pipeline.Artifact, error)

// fakeBuilder hands every kind the same stages.
type fakeBuilder struct {
	stages   []stageFn
	buildErr error
}

func (b *fakeBuilder) Build(kind core.JobKind) (*pipeline.Pipeline, error) {
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	var stages []pipeline.Stage
	for i, fn := range b.stages {
		stages = append(stages, pipeline.NewStage(string(rune('a'+i)), 1, fn))
	}
	return pipeline.New(slog.Default(), stages...), nil
}

func complete(collection string) stageFn {
	return func(ctx context.Context, a *pipeline.Artifact) (*pipeline.Artifact, error) {
		a.Collection = collection
		a.Documents = []core.Document{{SourceURI: "https://example.com", Text: "x"}}
		return a, nil
	}
}

func newTestOrchestrator(t *testing.T, b PipelineBuilder, opts ...Option) (*Orchestrator, *memory.JobStore) {
	t.Helper()
	store, err := memory.NewJobStore()
	require.NoError(t, err)
	o, err := New(store, b, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Close(ctx)
		store.Close()
	})
	return o, store
}

func waitJob(t *testing.T, o *Orchestrator, id string) *core.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := Wait(ctx, o, id, 5*time.Millisecond, nil)
	require.NoError(t, err)
	return job
}

func TestNew_RequiresDependencies(t *testing.T) {
	store, err := memory.NewJobStore()
	require.NoError(t, err)

	_, err = New(nil, &fakeBuilder{})
	assert.ErrorIs(t, err, ErrJobStoreRequired)

	_, err = New(store, nil)
	assert.ErrorIs(t, err, ErrBuilderRequired)

	_, err = New(store, &fakeBuilder{}, WithWorkers(0))
	assert.Error(t, err)
}

func TestSubmit_RunsToCompletion(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeBuilder{stages: []stageFn{complete("example_com")}})
	ctx := context.Background()

	id, err := o.Submit(ctx, core.KindScrape, core.Input{Prompt: "scrape https://example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job := waitJob(t, o, id)
	assert.Equal(t, core.StatusCompleted, job.Status)
	assert.Equal(t, 1.0, job.Progress)
	require.NotNil(t, job.Result)
	assert.Equal(t, "example_com", job.Result.CollectionName)
	assert.Equal(t, 1, job.Result.DocumentsProcessed)
	assert.Nil(t, job.Error)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)
}

func TestSubmit_InvalidInputCreatesNoJob(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeBuilder{stages: []stageFn{complete("c")}})
	ctx := context.Background()

	_, err := o.Submit(ctx, core.KindScrape, core.Input{Prompt: "   "})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "prompt", ve.Field)

	_, err = o.Submit(ctx, core.KindLocalUpload, core.Input{})
	require.ErrorAs(t, err, &ve)

	jobs, err := o.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmit_BuildErrorCreatesNoJob(t *testing.T) {
	buildErr := errors.New("no embedder")
	o, _ := newTestOrchestrator(t, &fakeBuilder{buildErr: buildErr})
	ctx := context.Background()

	_, err := o.Submit(ctx, core.KindChatQuery, core.Input{Prompt: "hi"})
	assert.ErrorIs(t, err, buildErr)

	jobs, err := o.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestQuery_UnknownID(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeBuilder{})

	job, found, err := o.Query(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, job)

	_, err = Wait(context.Background(), o, "no-such-job", time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSubmit_FailureRecordsErrorKind(t *testing.T) {
	failing := func(ctx context.Context, a *pipeline.Artifact) (*pipeline.Artifact, error) {
		return a, core.NewStageError(core.KindExtraction, errors.New("site unreachable"))
	}
	o, _ := newTestOrchestrator(t, &fakeBuilder{stages: []stageFn{complete("c"), failing, complete("c")}})

	id, err := o.Submit(context.Background(), core.KindScrape, core.Input{Prompt: "p"})
	require.NoError(t, err)

	job := waitJob(t, o, id)
	assert.Equal(t, core.StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, core.KindExtraction, job.Error.Kind)
	assert.Contains(t, job.Error.Message, "site unreachable")
	assert.Nil(t, job.Result)
	assert.InDelta(t, 1.0/3.0, job.Progress, 1e-9)
}

func TestSubmit_PanicBecomesInternalError(t *testing.T) {
	panicking := func(ctx context.Context, a *pipeline.Artifact) (*pipeline.Artifact, error) {
		panic("nil map")
	}
	o, _ := newTestOrchestrator(t, &fakeBuilder{stages: []stageFn{panicking}})

	id, err := o.Submit(context.Background(), core.KindChatQuery, core.Input{Prompt: "q"})
	require.NoError(t, err)

	job := waitJob(t, o, id)
	assert.Equal(t, core.StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, core.KindInternal, job.Error.Kind)
	assert.Contains(t, job.Error.Message, "nil map")
}

func TestSubmit_ConcurrencyBounded(t *testing.T) {
	const (
		workers = 2
		jobs    = 8
	)
	var running, maxRunning atomic.Int32
	slow := func(ctx context.Context, a *pipeline.Artifact) (*pipeline.Artifact, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return a, nil
	}
	o, _ := newTestOrchestrator(t, &fakeBuilder{stages: []stageFn{slow}}, WithWorkers(workers))
	ctx := context.Background()

	var ids []string
	for i := 0; i < jobs; i++ {
		id, err := o.Submit(ctx, core.KindChatQuery, core.Input{Prompt: "q"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		job := waitJob(t, o, id)
		assert.Equal(t, core.StatusCompleted, job.Status)
	}
	assert.LessOrEqual(t, maxRunning.Load(), int32(workers))
	assert.Equal(t, workers, o.Workers())
}

func TestSubmit_ProgressIsMonotonic(t *testing.T) {
	step := func(ctx context.Context, a *pipeline.Artifact) (*pipeline.Artifact, error) {
		time.Sleep(10 * time.Millisecond)
		return a, nil
	}
	o, _ := newTestOrchestrator(t, &fakeBuilder{stages: []stageFn{step, step, step, step}})

	id, err := o.Submit(context.Background(), core.KindScrape, core.Input{Prompt: "p"})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []float64
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := Wait(ctx, o, id, time.Millisecond, func(j *core.Job) {
		mu.Lock()
		seen = append(seen, j.Progress)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, job.Status)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 1.0, seen[len(seen)-1])
}

func TestList_DefaultLimit(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeBuilder{stages: []stageFn{complete("c")}})
	ctx := context.Background()

	for i := 0; i < DefaultListLimit+2; i++ {
		_, err := o.Submit(ctx, core.KindChatQuery, core.Input{Prompt: "q"})
		require.NoError(t, err)
	}

	jobs, err := o.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, DefaultListLimit)

	jobs, err = o.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestClose_CancelsRunningAndQueued(t *testing.T) {
	started := make(chan struct{}, 4)
	blocking := func(ctx context.Context, a *pipeline.Artifact) (*pipeline.Artifact, error) {
		started <- struct{}{}
		<-ctx.Done()
		return a, ctx.Err()
	}
	store, err := memory.NewJobStore()
	require.NoError(t, err)
	o, err := New(store, &fakeBuilder{stages: []stageFn{blocking}}, WithWorkers(1))
	require.NoError(t, err)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := o.Submit(ctx, core.KindScrape, core.Input{Prompt: "p"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started")
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, o.Close(closeCtx))

	for _, id := range ids {
		job, found, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, core.StatusFailed, job.Status, "job %s", id)
		require.NotNil(t, job.Error)
		assert.Equal(t, core.KindCancelled, job.Error.Kind)
	}

	_, err = o.Submit(ctx, core.KindScrape, core.Input{Prompt: "p"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, o.Close(closeCtx))
}
