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


// Package gleaner turns natural-language ingestion requests into background
// jobs that crawl or read a source, chunk and embed its documents, and store
// them in a vector collection that can later be searched and chatted with.
//
// A Service wires every component from a config.Config:
//
//	svc, err := gleaner.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer svc.Close(ctx)
//
//	id, err := svc.Orchestrator().Submit(ctx, core.KindScrape, core.Input{
//		Prompt: "crawl https://go.dev/doc",
//	})
//
// Jobs run on a bounded worker pool; their status is polled with Query.
package gleaner
