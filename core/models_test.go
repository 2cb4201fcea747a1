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
	"errors"
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "plain content", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IDFromContent(tt.content) != IDFromContent(tt.content) {
				t.Errorf("IDFromContent() produced different IDs for %q", tt.content)
			}
		})
	}
}

func TestChunkID(t *testing.T) {
	a := ChunkID("https://example.com", 0, "hello")
	if a != ChunkID("https://example.com", 0, "hello") {
		t.Fatal("ChunkID() is not deterministic")
	}
	if a == ChunkID("https://example.com", 1, "hello") {
		t.Error("ChunkID() ignored the chunk index")
	}
	if a == ChunkID("https://example.org", 0, "hello") {
		t.Error("ChunkID() ignored the source")
	}
}

func TestJobLifecycle(t *testing.T) {
	now := time.Now()
	job := NewJob(KindScrape, Input{Prompt: "scrape https://example.com"}, now)
	if job.Status != StatusPending || job.Progress != 0 {
		t.Fatalf("new job = %s/%v, want pending/0", job.Status, job.Progress)
	}

	if err := job.Advance(0.5, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Advance() on pending job error = %v, want ErrInvalidTransition", err)
	}
	if err := job.Start(now); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := job.Start(now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start() error = %v, want ErrInvalidTransition", err)
	}
	if err := job.Advance(0.5, now); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if err := job.Advance(0.25, now); !errors.Is(err, ErrProgressRegression) {
		t.Errorf("Advance() backwards error = %v, want ErrProgressRegression", err)
	}
	if err := job.Advance(1.5, now); !errors.Is(err, ErrProgressOutOfRange) {
		t.Errorf("Advance() out of range error = %v, want ErrProgressOutOfRange", err)
	}
	if err := job.Complete(&Result{DocumentsProcessed: 3}, now); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if job.Progress != 1 || job.Result == nil || job.Error != nil || job.FinishedAt == nil {
		t.Errorf("completed job = %+v", job)
	}
	if err := job.Fail(JobError{Kind: KindInternal}, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail() after Complete() error = %v, want ErrInvalidTransition", err)
	}
	if err := ValidateJob(job); err != nil {
		t.Errorf("ValidateJob() error = %v", err)
	}
}

func TestJobFailFreezesProgress(t *testing.T) {
	now := time.Now()
	job := NewJob(KindScrape, Input{Prompt: "x"}, now)
	_ = job.Start(now)
	_ = job.Advance(0.5, now)

	if err := job.Fail(JobError{Kind: KindEmbedding, Message: "boom"}, now); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if job.Progress != 0.5 {
		t.Errorf("Progress = %v, want 0.5", job.Progress)
	}
	if job.Result != nil || job.Error == nil {
		t.Errorf("failed job must carry only an error: %+v", job)
	}
}

func TestJobFailFromPending(t *testing.T) {
	job := NewJob(KindChatQuery, Input{Prompt: "q"}, time.Now())
	if err := job.Fail(JobError{Kind: KindCancelled}, time.Now()); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if job.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", job.Status)
	}
}

func TestJobClone(t *testing.T) {
	now := time.Now()
	job := NewJob(KindLocalUpload, Input{Files: []string{"a.txt"}}, now)
	_ = job.Start(now)

	clone := job.Clone()
	clone.Input.Files[0] = "mutated"
	*clone.StartedAt = now.Add(time.Hour)

	if job.Input.Files[0] != "a.txt" {
		t.Error("Clone() shares the files slice")
	}
	if !job.StartedAt.Equal(now.UTC()) {
		t.Error("Clone() shares StartedAt")
	}
	if (*Job)(nil).Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	if v[0] != 0.6 || v[1] != 0.8 {
		t.Errorf("NormalizeVector() = %v, want [0.6 0.8]", v)
	}
	zero := NormalizeVector([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("NormalizeVector() of zero vector = %v", zero)
	}
	if got := DotProduct([]float32{1, 2, 3}, []float32{4, 5}); got != 14 {
		t.Errorf("DotProduct() = %v, want 14", got)
	}
}
