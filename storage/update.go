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
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/gleaner/core"
)

// ApplyUpdate runs fn against a copy of current and returns the new record.
// The copy is rejected if fn fails, changes an immutable field, breaks a
// record invariant or makes an illegal status transition. current is never touched.
func ApplyUpdate(current *core.Job, fn func(*core.Job) error) (*core.Job, error) {
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.ID != current.ID || next.Kind != current.Kind || !next.CreatedAt.Equal(current.CreatedAt) {
		return nil, ErrImmutableField
	}
	if !inputEqual(next.Input, current.Input) {
		return nil, ErrImmutableField
	}
	if err := core.ValidateJob(next); err != nil {
		return nil, err
	}
	if err := core.CheckTransition(current, next); err != nil {
		return nil, err
	}
	return next, nil
}

func inputEqual(a, b core.Input) bool {
	return a.Prompt == b.Prompt &&
		a.SourceHint == b.SourceHint &&
		a.Collection == b.Collection &&
		slices.Equal(a.Files, b.Files)
}

// PrepareCreate validates a job handed to Create and stamps it with id.
func PrepareCreate(job *core.Job, id string, now time.Time) (*core.Job, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", core.ErrInvalidJob)
	}
	stored := job.Clone()
	stored.ID = id
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now.UTC()
	}
	if stored.UpdatedAt.Before(stored.CreatedAt) {
		stored.UpdatedAt = stored.CreatedAt
	}
	if err := core.ValidateJob(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Evictions picks the jobs to drop from a store holding jobs, which must be
// ordered oldest first. Terminal jobs past RetainFor go first, then the oldest
// terminal jobs until the store fits MaxJobs. Non-terminal jobs are never chosen.
func (r Retention) Evictions(jobs []*core.Job, now time.Time) []string {
	var evict []string
	dropped := make(map[string]bool)
	if r.RetainFor > 0 {
		cutoff := now.Add(-r.RetainFor)
		for _, j := range jobs {
			if j.Status.Terminal() && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
				evict = append(evict, j.ID)
				dropped[j.ID] = true
			}
		}
	}
	if r.MaxJobs <= 0 {
		return evict
	}
	excess := len(jobs) - len(evict) - r.MaxJobs
	for _, j := range jobs {
		if excess <= 0 {
			break
		}
		if dropped[j.ID] || !j.Status.Terminal() {
			continue
		}
		evict = append(evict, j.ID)
		dropped[j.ID] = true
		excess--
	}
	return evict
}

// Page applies offset and limit to n items and returns the bounds to slice with.
// A non-positive limit selects everything after offset.
func Page(n, limit, offset int) (start, end int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end = n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

// CancelInterrupted is the mutator used by RecoverInterrupted implementations.
func CancelInterrupted(now time.Time) func(*core.Job) error {
	return func(j *core.Job) error {
		return j.Fail(core.JobError{
			Kind:    core.KindCancelled,
			Message: "job interrupted by process restart",
		}, now)
	}
}
