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
	"bytes"
	"strings"
	"testing"

	"github.com/poiesic/gleaner/core"
	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter_SkipsUnchangedSnapshots(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf)

	job := &core.Job{ID: "j1", Status: core.StatusRunning, Progress: 0.25}
	p.Update(job)
	p.Update(job)
	assert.Equal(t, 1, strings.Count(buf.String(), "\r"))
	assert.Contains(t, buf.String(), "Job j1: running (25.0%)")

	p.Update(&core.Job{ID: "j1", Status: core.StatusRunning, Progress: 0.5})
	assert.Equal(t, 2, strings.Count(buf.String(), "\r"))
}

func TestProgressPrinter_Finish(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf)

	p.Finish(&core.Job{ID: "j2", Status: core.StatusCompleted, Progress: 1})

	out := buf.String()
	assert.Contains(t, out, "completed (100.0%)")
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Greater(t, p.Elapsed().Nanoseconds(), int64(-1))
}
