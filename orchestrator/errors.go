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

import "errors"

var (
	// ErrJobStoreRequired is returned when a job store is not provided.
	ErrJobStoreRequired = errors.New("job store required")

	// ErrBuilderRequired is returned when a pipeline builder is not provided.
	ErrBuilderRequired = errors.New("pipeline builder required")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("orchestrator is closed")

	// ErrPoolClosed is returned by Enqueue after Close.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrJobNotFound is returned by Wait for an unknown job.
	ErrJobNotFound = errors.New("job not found")
)
