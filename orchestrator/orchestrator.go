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


// Package orchestrator accepts jobs, runs their pipelines on a bounded worker
// pool, and records every state transition in a job store.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/pipeline"
	"github.com/poiesic/gleaner/storage"
)

// DefaultListLimit is the number of jobs List returns when no limit is given.
const DefaultListLimit = 10

// PipelineBuilder returns the stage sequence for a job kind.
type PipelineBuilder interface {
	Build(kind core.JobKind) (*pipeline.Pipeline, error)
}

var _ PipelineBuilder = (*pipeline.Builder)(nil)

// Orchestrator owns the lifecycle of every job from submission to a terminal state.
type Orchestrator struct {
	store   storage.JobStore
	builder PipelineBuilder
	pool    *WorkerPool
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithWorkers sets the number of jobs that may run at once.
// Default is DefaultWorkers.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return fmt.Errorf("workers must be positive, got %d", n)
		}
		o.workers = n
		return nil
	}
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		o.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// New creates an Orchestrator and starts its worker pool.
func New(store storage.JobStore, builder PipelineBuilder, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrJobStoreRequired
	}
	if builder == nil {
		return nil, ErrBuilderRequired
	}

	o := &Orchestrator{
		store:   store,
		builder: builder,
		workers: DefaultWorkers,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")

	pool, err := NewWorkerPool(o.workers, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	o.pool = pool
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

// Submit validates the input, records a pending job, and queues it. It
// returns as soon as the job is stored. Invalid input returns a
// *core.ValidationError and no job is created.
func (o *Orchestrator) Submit(ctx context.Context, kind core.JobKind, in core.Input) (string, error) {
	if o.closed.Load() {
		return "", ErrClosed
	}
	valid, err := core.ValidateInput(kind, in)
	if err != nil {
		return "", err
	}
	p, err := o.builder.Build(kind)
	if err != nil {
		return "", err
	}

	job := core.NewJob(kind, valid, o.now())
	id, err := o.store.Create(ctx, job)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	job.ID = id

	err = o.pool.Enqueue(
		func() { o.execute(job, p) },
		func() { o.cancelQueued(id) },
	)
	if err != nil {
		o.cancelQueued(id)
		return "", ErrClosed
	}

	o.logger.Info("job submitted", "job", id, "kind", kind, "status", core.StatusPending)
	return id, nil
}

// Query returns a snapshot of the job. found is false for an unknown id.
func (o *Orchestrator) Query(ctx context.Context, id string) (*core.Job, bool, error) {
	return o.store.Get(ctx, id)
}

// List returns up to limit jobs, newest first. A limit of zero or less
// uses DefaultListLimit.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]*core.Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return o.store.List(ctx, limit, 0)
}

// Stats returns the number of queued and running jobs.
func (o *Orchestrator) Stats() (queued, running int) {
	return o.pool.Queued(), o.pool.Running()
}

// Workers returns the configured concurrency limit.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Close stops accepting jobs, cancels those in flight, and fails every job
// that has not started with a CancelledError. It waits for workers to
// return until ctx expires. The job store is left open.
func (o *Orchestrator) Close(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.logger.Info("shutting down", "queued", o.pool.Queued(), "running", o.pool.Running())
	o.cancel()
	return o.pool.Close(ctx)
}

// execute runs on a worker. Store writes use a context detached from
// cancellation so the terminal state is recorded even during shutdown.
func (o *Orchestrator) execute(job *core.Job, p *pipeline.Pipeline) {
	id := job.ID
	logger := o.logger.With("job", id, "kind", job.Kind)
	storeCtx := context.WithoutCancel(o.ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			o.fail(storeCtx, logger, id, core.JobError{
				Kind:    core.KindInternal,
				Message: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	if err := o.ctx.Err(); err != nil {
		o.fail(storeCtx, logger, id, core.ToJobError(err))
		return
	}

	if err := o.store.Update(storeCtx, id, func(j *core.Job) error { return j.Start(o.now()) }); err != nil {
		logger.Error("failed to start job", "err", err)
		return
	}
	logger.Info("job started", "status", core.StatusRunning)
	start := o.now()

	onProgress := func(progress float64) {
		err := o.store.Update(storeCtx, id, func(j *core.Job) error { return j.Advance(progress, o.now()) })
		if err != nil {
			logger.Warn("failed to record progress", "progress", progress, "err", err)
		}
	}

	out, err := p.Run(o.ctx, pipeline.NewArtifact(job), onProgress)
	if err != nil {
		jobErr := core.ToJobError(err)
		if o.ctx.Err() != nil && jobErr.Kind != core.KindCancelled {
			jobErr = core.JobError{Kind: core.KindCancelled, Message: "job cancelled: " + err.Error()}
		}
		o.fail(storeCtx, logger, id, jobErr)
		return
	}

	result := out.Result()
	if err := o.store.Update(storeCtx, id, func(j *core.Job) error { return j.Complete(result, o.now()) }); err != nil {
		logger.Error("failed to complete job", "err", err)
		return
	}
	logger.Info("job completed",
		"status", core.StatusCompleted,
		"collection", result.CollectionName,
		"documents", result.DocumentsProcessed,
		"chunks", result.ChunksEmbedded,
		"elapsed", o.now().Sub(start))
}

func (o *Orchestrator) cancelQueued(id string) {
	logger := o.logger.With("job", id)
	o.fail(context.Background(), logger, id, core.JobError{
		Kind:    core.KindCancelled,
		Message: "job cancelled before start: orchestrator shut down",
	})
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, id string, jobErr core.JobError) {
	err := o.store.Update(ctx, id, func(j *core.Job) error { return j.Fail(jobErr, o.now()) })
	if err != nil {
		logger.Error("failed to record job failure", "err", err)
		return
	}
	logger.Warn("job failed", "status", core.StatusFailed, "error_kind", jobErr.Kind, "err", jobErr.Message)
}
