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


package api

import (
	"context"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/orchestrator"
)

// Jobs is the job surface the server depends on.
type Jobs interface {
	Submit(ctx context.Context, kind core.JobKind, in core.Input) (string, error)
	Query(ctx context.Context, id string) (*core.Job, bool, error)
	List(ctx context.Context, limit int) ([]*core.Job, error)
}

// PoolStats is implemented by job services that can report worker usage.
type PoolStats interface {
	Stats() (queued, running int)
	Workers() int
}

// Collections is the vector store surface the server depends on.
type Collections interface {
	ListCollections(ctx context.Context) ([]core.CollectionInfo, error)
	CollectionStats(ctx context.Context, name string) (*core.CollectionStats, error)
	DeleteCollection(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// ScrapeRequest is the body of POST /scrape.
type ScrapeRequest struct {
	Prompt     string `json:"prompt"`
	SourceType string `json:"source_type"`
}

// UploadRequest is the body of POST /upload-local. A bare JSON array of
// paths is accepted as well.
type UploadRequest struct {
	Files []string `json:"files"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message           string `json:"message"`
	ContextCollection string `json:"context_collection"`
	ChatType          string `json:"chat_type"`
}

// Chat types accepted by POST /chat.
const (
	ChatTypeData   = "data"
	ChatTypeConfig = "config"
)

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ChatResponse carries the answer of a finished chat job.
type ChatResponse struct {
	JobID    string `json:"job_id"`
	Response string `json:"response"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthResponse reports the state of the server and its dependencies.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Workers   *WorkerStats      `json:"workers,omitempty"`
}

// WorkerStats describes worker pool usage.
type WorkerStats struct {
	Width   int `json:"width"`
	Queued  int `json:"queued"`
	Running int `json:"running"`
}

var (
	_ Jobs      = (*orchestrator.Orchestrator)(nil)
	_ PoolStats = (*orchestrator.Orchestrator)(nil)
)
