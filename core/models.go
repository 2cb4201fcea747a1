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

package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier for stored documents.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// JobKind identifies the kind of task a job runs.
type JobKind string

const (
	// KindScrape resolves a prompt to a remote or local source and ingests it.
	KindScrape JobKind = "scrape"
	// KindLocalUpload ingests an explicit list of local files.
	KindLocalUpload JobKind = "local-upload"
	// KindChatQuery answers a question using a collection as context.
	KindChatQuery JobKind = "chat-query"
	// KindConfigCommand answers a vector store configuration request.
	KindConfigCommand JobKind = "config-command"
)

// JobKinds lists every supported kind.
var JobKinds = []JobKind{KindScrape, KindLocalUpload, KindChatQuery, KindConfigCommand}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SourceHint is the caller's preference for how a scrape prompt is resolved.
type SourceHint string

const (
	HintAuto          SourceHint = "auto"
	HintRemoteCrawl   SourceHint = "remote-crawl"
	HintAdvancedCrawl SourceHint = "advanced-crawl"
	HintLocal         SourceHint = "local"
)

// Input is the original request payload of a job. It is never modified after
// the job is created.
type Input struct {
	Prompt     string     `json:"prompt,omitempty"`
	SourceHint SourceHint `json:"sourceTypeHint,omitempty"`
	Files      []string   `json:"files,omitempty"`
	Collection string     `json:"collection,omitempty"`
}

// Clone returns a deep copy of the input.
func (in Input) Clone() Input {
	out := in
	if in.Files != nil {
		out.Files = append([]string(nil), in.Files...)
	}
	return out
}

// Result is the payload of a completed job.
type Result struct {
	CollectionName     string `json:"collectionName,omitempty"`
	DocumentsProcessed int    `json:"documentsProcessed,omitempty"`
	ChunksEmbedded     int    `json:"chunksEmbedded,omitempty"`
	FilesProcessed     int    `json:"filesProcessed,omitempty"`
	Response           string `json:"response,omitempty"`
}

// JobError is the structured failure recorded on a failed job.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Job is the tracked state of one submitted task.
type Job struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Status     JobStatus  `json:"status"`
	Progress   float64    `json:"progress"`
	Input      Input      `json:"input"`
	Result     *Result    `json:"result,omitempty"`
	Error      *JobError  `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewJob returns a pending job with zero progress. The ID is assigned by the store.
func NewJob(kind JobKind, input Input, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		Kind:      kind,
		Status:    StatusPending,
		Input:     input.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers never share state with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Input = j.Input.Clone()
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

// Start moves a pending job to running.
func (j *Job) Start(now time.Time) error {
	if j.Status != StatusPending {
		return transitionError(j.Status, StatusRunning)
	}
	now = now.UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// Advance records progress on a running job. Progress must stay within [0,1]
// and may not decrease.
func (j *Job) Advance(progress float64, now time.Time) error {
	if j.Status != StatusRunning {
		return transitionError(j.Status, StatusRunning)
	}
	if progress < 0 || progress > 1 {
		return ErrProgressOutOfRange
	}
	if progress < j.Progress {
		return ErrProgressRegression
	}
	j.Progress = progress
	j.UpdatedAt = now.UTC()
	return nil
}

// Complete moves a running job to completed with progress 1.0.
func (j *Job) Complete(result *Result, now time.Time) error {
	if j.Status != StatusRunning {
		return transitionError(j.Status, StatusCompleted)
	}
	if result == nil {
		result = &Result{}
	}
	now = now.UTC()
	r := *result
	j.Status = StatusCompleted
	j.Progress = 1.0
	j.Result = &r
	j.Error = nil
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

// Fail moves a pending or running job to failed. Progress is left untouched.
func (j *Job) Fail(jobErr JobError, now time.Time) error {
	if j.Status.Terminal() {
		return transitionError(j.Status, StatusFailed)
	}
	now = now.UTC()
	j.Status = StatusFailed
	j.Result = nil
	j.Error = &jobErr
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}
