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
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/source"
)

// LocalFilesCollection receives every local upload without an explicit collection.
const LocalFilesCollection = "local_files"

const maxCollectionName = 128

var (
	wordPattern    = regexp.MustCompile(`\b\w+\b`)
	invalidNameRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	stopWords      = []string{"scrape", "crawl", "get", "from", "with"}
)

// CollectionName picks the collection a job writes to. An explicit
// collection wins. Otherwise crawls are named after the host of their first
// URL, other prompts after up to three meaningful words, and as a last resort
// after the time.
func CollectionName(kind core.JobKind, in core.Input, plan source.Plan, now time.Time) string {
	if in.Collection != "" {
		return in.Collection
	}
	if kind == core.KindLocalUpload {
		return LocalFilesCollection
	}
	if len(plan.URLs) > 0 {
		if u, err := url.Parse(plan.URLs[0]); err == nil && u.Host != "" {
			return sanitizeName("scraped_" + u.Host)
		}
	}

	var words []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(in.Prompt), -1) {
		if len(w) > 3 && !slices.Contains(stopWords, w) {
			words = append(words, w)
		}
		if len(words) == 3 {
			break
		}
	}
	if len(words) > 0 {
		return sanitizeName("scraped_" + strings.Join(words, "_"))
	}
	return "scraped_content_" + now.UTC().Format("20060102_150405")
}

// CollectionDescription is stored when the collection is first created.
func CollectionDescription(kind core.JobKind, in core.Input) string {
	if kind == core.KindLocalUpload {
		return "Local files processed and uploaded"
	}
	prompt := []rune(in.Prompt)
	if len(prompt) > 100 {
		prompt = prompt[:100]
	}
	return "Scraped content from: " + string(prompt)
}

func sanitizeName(name string) string {
	name = invalidNameRun.ReplaceAllString(name, "_")
	if len(name) > maxCollectionName {
		name = name[:maxCollectionName]
	}
	return name
}
