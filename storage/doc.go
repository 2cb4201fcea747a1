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

// Package storage defines the persistence contracts for jobs and vector
// collections.
//
// Two interfaces decouple the orchestrator and pipeline from the backends:
//
//   - JobStore: create, read, update and list job records
//   - VectorStore: collections of embedded chunks with similarity search
//
// Implementations live in subpackages:
//
//   - badger: embedded jobs and vectors on a shared BadgerDB backend
//   - memory: an in-process JobStore with bounded retention
//   - redis: a JobStore shared between processes
//   - pgvector: a VectorStore on PostgreSQL with the pgvector extension
//
// # Usage
//
// Open both stores on one embedded database:
//
//	backend, err := badger.OpenBackend("/path/to/db", false, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	jobs, err := badger.NewJobStore(backend)
//	vectors, err := badger.NewVectorStore(backend)
//
// Use in tests with in-memory storage:
//
//	jobs, vectors, backend, err := badger.NewMemoryStores()
//
// # Job Updates
//
// JobStore.Update applies a mutation under the store's own locking, so
// concurrent writers never observe a half-written job. Terminal jobs reject
// further transitions through the core.Job state machine.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use from multiple
// goroutines.
package storage
