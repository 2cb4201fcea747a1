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


package pipeline

import (
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/extract"
	"github.com/poiesic/gleaner/source"
)

// Artifact carries the state of one run between stages. Each run gets its
// own artifact.
type Artifact struct {
	JobID string
	Kind  core.JobKind
	Input core.Input

	Plan      source.Plan
	Documents []core.Document
	Chunks    []core.Chunk
	Dimension int

	Collection string
	Upserted   int

	Response string
}

// NewArtifact returns the starting artifact for job. Local uploads start
// with a plan over their files since they skip source resolution.
func NewArtifact(job *core.Job) *Artifact {
	a := &Artifact{
		JobID: job.ID,
		Kind:  job.Kind,
		Input: job.Input.Clone(),
	}
	if job.Kind == core.KindLocalUpload {
		a.Plan = source.Local(a.Input.Files...)
	}
	return a
}

// Result builds the payload stored on the completed job.
func (a *Artifact) Result() *core.Result {
	switch a.Kind {
	case core.KindChatQuery, core.KindConfigCommand:
		return &core.Result{Response: a.Response}
	}
	res := &core.Result{
		CollectionName:     a.Collection,
		DocumentsProcessed: len(a.Documents),
		ChunksEmbedded:     len(a.Chunks),
	}
	if a.Kind == core.KindLocalUpload {
		res.FilesProcessed = extract.CountFiles(a.Documents)
	}
	return res
}
