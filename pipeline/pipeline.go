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


// Package pipeline runs a job as an ordered list of weighted stages.
//
// Each stage receives the artifact produced by the previous one. Progress is
// reported once per completed stage as the completed share of total weight,
// so it never decreases and does not move while a stage is still running.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stage is one step of a pipeline.
type Stage interface {
	Name() string
	Weight() float64
	Execute(ctx context.Context, a *Artifact) (*Artifact, error)
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	name   string
	weight float64
	fn     func(ctx context.Context, a *Artifact) (*Artifact, error)
}

var _ Stage = (*StageFunc)(nil)

// NewStage returns a stage running fn. A weight of zero or less counts as 1.
func NewStage(name string, weight float64, fn func(ctx context.Context, a *Artifact) (*Artifact, error)) *StageFunc {
	return &StageFunc{name: name, weight: weight, fn: fn}
}

func (s *StageFunc) Name() string { return s.name }

func (s *StageFunc) Weight() float64 { return s.weight }

func (s *StageFunc) Execute(ctx context.Context, a *Artifact) (*Artifact, error) {
	return s.fn(ctx, a)
}

// ProgressFunc receives the cumulative progress after each stage.
type ProgressFunc func(progress float64)

// Pipeline is an ordered list of stages.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// New creates a pipeline. A nil logger means slog.Default().
func New(logger *slog.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{stages: stages, logger: logger.With("component", "pipeline")}
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

func stageWeight(s Stage) float64 {
	if w := s.Weight(); w > 0 {
		return w
	}
	return 1
}

// Run executes the stages in order. On failure the last good artifact is
// returned together with the error, and no further progress is reported.
func (p *Pipeline) Run(ctx context.Context, a *Artifact, onProgress ProgressFunc) (*Artifact, error) {
	if len(p.stages) == 0 {
		return a, ErrEmptyPipeline
	}

	var total float64
	for _, s := range p.stages {
		total += stageWeight(s)
	}

	var done float64
	for i, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return a, err
		}

		start := time.Now()
		out, err := s.Execute(ctx, a)
		if out != nil {
			a = out
		}
		if err != nil {
			p.logger.Debug("stage failed", "job", a.JobID, "stage", s.Name(), "elapsed", time.Since(start), "error", err)
			return a, fmt.Errorf("%s: %w", s.Name(), err)
		}

		done += stageWeight(s)
		progress := done / total
		if i == len(p.stages)-1 {
			progress = 1
		}
		p.logger.Debug("stage completed", "job", a.JobID, "stage", s.Name(), "progress", progress, "elapsed", time.Since(start))
		if onProgress != nil {
			onProgress(progress)
		}
	}
	return a, nil
}
