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
	"fmt"
	"time"

	"github.com/poiesic/gleaner/core"
)

// DefaultPollInterval is used by Wait when interval is not positive.
const DefaultPollInterval = 250 * time.Millisecond

// Querier looks up job snapshots.
type Querier interface {
	Query(ctx context.Context, id string) (*core.Job, bool, error)
}

var _ Querier = (*Orchestrator)(nil)

// Wait polls until the job reaches a terminal state or ctx is done. onUpdate,
// if not nil, receives every snapshot including the final one.
func Wait(ctx context.Context, q Querier, id string, interval time.Duration, onUpdate func(*core.Job)) (*core.Job, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, found, err := q.Query(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to query job %s: %w", id, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
