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

// Package source turns a natural-language scrape prompt plus a source hint
// into a concrete retrieval plan.
//
// Resolution is a small ordered list of rules. The first rule that matches
// decides the plan, and a prompt no rule accepts resolves to Ambiguous:
//
//	r := source.NewResolver()
//	plan := r.Resolve(core.HintAuto, "Scrape articles from https://example.com/blog")
//	// plan.Kind == source.KindRemoteCrawl, plan.URLs == ["https://example.com/blog"]
package source

import (
	"fmt"
	"strings"
)

// Kind tags the variant of a Plan.
type Kind string

const (
	// KindRemoteCrawl fetches each URL directly.
	KindRemoteCrawl Kind = "remote-crawl"
	// KindAdvancedCrawl hands each URL to a crawling service that follows links.
	KindAdvancedCrawl Kind = "advanced-crawl"
	// KindLocal reads files and directories from the local filesystem.
	KindLocal Kind = "local"
	// KindAmbiguous means no rule could pick a source.
	KindAmbiguous Kind = "ambiguous"
)

// Plan is the resolved retrieval plan. URLs is set for the crawl variants,
// Paths for Local. Reason explains an Ambiguous plan.
type Plan struct {
	Kind   Kind
	URLs   []string
	Paths  []string
	Reason string
}

// RemoteCrawl returns a plan that fetches urls one page each.
func RemoteCrawl(urls ...string) Plan {
	return Plan{Kind: KindRemoteCrawl, URLs: urls}
}

// AdvancedCrawl returns a plan that crawls from each of urls.
func AdvancedCrawl(urls ...string) Plan {
	return Plan{Kind: KindAdvancedCrawl, URLs: urls}
}

// Local returns a plan that reads paths from disk.
func Local(paths ...string) Plan {
	return Plan{Kind: KindLocal, Paths: paths}
}

// Ambiguous returns the plan for a prompt that could not be resolved.
func Ambiguous(reason string) Plan {
	return Plan{Kind: KindAmbiguous, Reason: reason}
}

// Targets returns the URLs or paths the plan points at.
func (p Plan) Targets() []string {
	if p.Kind == KindLocal {
		return p.Paths
	}
	return p.URLs
}

func (p Plan) String() string {
	if p.Kind == KindAmbiguous {
		return fmt.Sprintf("ambiguous(%s)", p.Reason)
	}
	return fmt.Sprintf("%s(%s)", p.Kind, strings.Join(p.Targets(), ", "))
}
