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
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// DefaultWorkers is the pool width used when none is configured.
const DefaultWorkers = 4

type task struct {
	run  func()
	drop func()
}

// WorkerPool runs tasks with bounded concurrency. Enqueue never blocks: tasks
// wait in an unbounded FIFO queue and a single dispatcher hands them to an
// ants pool, blocking only itself while every worker is busy.
type WorkerPool struct {
	pool   *ants.Pool
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool

	dispatched chan struct{}
	inflight   sync.WaitGroup
	logger     *slog.Logger
}

// NewWorkerPool starts a pool running at most width tasks at once.
func NewWorkerPool(width int, logger *slog.Logger) (*WorkerPool, error) {
	if width < 1 {
		width = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker-pool")

	pool, err := ants.NewPool(width, ants.WithPanicHandler(func(p any) {
		logger.Error("worker panic", "panic", p)
	}))
	if err != nil {
		return nil, err
	}

	wp := &WorkerPool{
		pool:       pool,
		dispatched: make(chan struct{}),
		logger:     logger,
	}
	wp.cond = sync.NewCond(&wp.mu)
	go wp.dispatch()
	return wp, nil
}

// Enqueue appends a task. run is executed on a worker; drop is called
// instead if the pool closes before the task starts, including a task the
// dispatcher already handed to a worker that had not picked it up yet.
func (wp *WorkerPool) Enqueue(run, drop func()) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return ErrPoolClosed
	}
	wp.queue = append(wp.queue, task{run: run, drop: drop})
	wp.cond.Signal()
	return nil
}

// Queued returns the number of tasks waiting for a worker.
func (wp *WorkerPool) Queued() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.queue)
}

// Running returns the number of busy workers.
func (wp *WorkerPool) Running() int {
	return wp.pool.Running()
}

// Width returns the maximum number of concurrent tasks.
func (wp *WorkerPool) Width() int {
	return wp.pool.Cap()
}

func (wp *WorkerPool) isClosed() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.closed
}

func (wp *WorkerPool) next() (task, bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	for len(wp.queue) == 0 && !wp.closed {
		wp.cond.Wait()
	}
	if wp.closed {
		return task{}, false
	}
	t := wp.queue[0]
	wp.queue[0] = task{}
	wp.queue = wp.queue[1:]
	return t, true
}

func (wp *WorkerPool) dispatch() {
	defer close(wp.dispatched)
	for {
		t, ok := wp.next()
		if !ok {
			return
		}
		wp.inflight.Add(1)
		err := wp.pool.Submit(func() {
			defer wp.inflight.Done()
			if wp.isClosed() {
				if t.drop != nil {
					t.drop()
				}
				return
			}
			t.run()
		})
		if err != nil {
			wp.inflight.Done()
			wp.logger.Warn("failed to submit task", "err", err)
			if t.drop != nil {
				t.drop()
			}
		}
	}
}

// Close drops every queued task, waits for running tasks to return or ctx
// to expire, and releases the workers.
func (wp *WorkerPool) Close(ctx context.Context) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil
	}
	wp.closed = true
	pending := wp.queue
	wp.queue = nil
	wp.cond.Broadcast()
	wp.mu.Unlock()

	for _, t := range pending {
		if t.drop != nil {
			t.drop()
		}
	}
	if len(pending) > 0 {
		wp.logger.Info("dropped queued tasks", "count", len(pending))
	}

	done := make(chan struct{})
	go func() {
		<-wp.dispatched
		wp.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.pool.Release()
		return nil
	case <-ctx.Done():
		wp.pool.Release()
		return ctx.Err()
	}
}
