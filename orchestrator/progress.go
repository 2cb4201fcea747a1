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
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/gleaner/core"
)

// ProgressPrinter renders job snapshots as a single updating terminal line.
type ProgressPrinter struct {
	writer       io.Writer
	lastProgress float64
	lastStatus   core.JobStatus
	startTime    time.Time
	started      bool
	mu           sync.Mutex
}

// NewProgressPrinter creates a printer writing to writer (typically os.Stderr).
func NewProgressPrinter(writer io.Writer) *ProgressPrinter {
	return &ProgressPrinter{writer: writer}
}

// Update prints job when its status or progress changed since the last call.
func (p *ProgressPrinter) Update(job *core.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.startTime = time.Now()
		p.started = true
	} else if job.Status == p.lastStatus && job.Progress == p.lastProgress {
		return
	}
	p.lastStatus = job.Status
	p.lastProgress = job.Progress
	p.report(job)
}

// Finish prints the final state followed by a newline.
func (p *ProgressPrinter) Finish(job *core.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.startTime = time.Now()
		p.started = true
	}
	p.report(job)
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since the first update.
func (p *ProgressPrinter) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report must be called with the lock held.
func (p *ProgressPrinter) report(job *core.Job) {
	elapsed := time.Since(p.startTime)
	fmt.Fprintf(p.writer, "\rJob %s: %s (%.1f%%) - %.1fs",
		job.ID, job.Status, job.Progress*100.0, elapsed.Seconds())
}
