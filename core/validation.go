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
	"fmt"
	"slices"
	"strings"
)

var hintAliases = map[string]SourceHint{
	"":               HintAuto,
	"auto":           HintAuto,
	"remote-crawl":   HintRemoteCrawl,
	"advanced-crawl": HintAdvancedCrawl,
	"local":          HintLocal,
	"apify":          HintRemoteCrawl,
	"firecrawl":      HintAdvancedCrawl,
}

// ParseSourceHint accepts the canonical hint names plus the legacy backend
// names. An empty string means auto.
func ParseSourceHint(s string) (SourceHint, error) {
	hint, ok := hintAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &ValidationError{Field: "sourceTypeHint", Reason: fmt.Sprintf("unknown source hint %q", s)}
	}
	return hint, nil
}

// ParseJobKind validates a kind name.
func ParseJobKind(s string) (JobKind, error) {
	k := JobKind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(JobKinds, k) {
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown job kind %q", s)}
	}
	return k, nil
}

// ValidateInput checks a submission against the rules of its kind and returns
// the normalized input.
func ValidateInput(kind JobKind, in Input) (Input, error) {
	out := in.Clone()
	switch kind {
	case KindScrape:
		if strings.TrimSpace(in.Prompt) == "" {
			return Input{}, &ValidationError{Field: "prompt", Reason: "must not be empty"}
		}
		hint, err := ParseSourceHint(string(in.SourceHint))
		if err != nil {
			return Input{}, err
		}
		out.SourceHint = hint
	case KindLocalUpload:
		if len(in.Files) == 0 {
			return Input{}, &ValidationError{Field: "files", Reason: "must not be empty"}
		}
		for i, f := range in.Files {
			if strings.TrimSpace(f) == "" {
				return Input{}, &ValidationError{Field: fmt.Sprintf("files[%d]", i), Reason: "must not be blank"}
			}
		}
	case KindChatQuery, KindConfigCommand:
		if strings.TrimSpace(in.Prompt) == "" {
			return Input{}, &ValidationError{Field: "prompt", Reason: "must not be empty"}
		}
	default:
		return Input{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown job kind %q", kind)}
	}
	return out, nil
}

// ValidateJob checks the record invariants that every store enforces after a mutation.
func ValidateJob(j *Job) error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	if j.Progress < 0 || j.Progress > 1 {
		return fmt.Errorf("%w: progress %v", ErrInvalidJob, j.Progress)
	}
	switch j.Status {
	case StatusPending, StatusRunning:
		if j.Result != nil || j.Error != nil {
			return fmt.Errorf("%w: %s job carries a result or error", ErrInvalidJob, j.Status)
		}
	case StatusCompleted:
		if j.Result == nil || j.Error != nil {
			return fmt.Errorf("%w: completed job must carry only a result", ErrInvalidJob)
		}
		if j.Progress != 1 {
			return fmt.Errorf("%w: completed job progress %v", ErrInvalidJob, j.Progress)
		}
	case StatusFailed:
		if j.Error == nil || j.Result != nil {
			return fmt.Errorf("%w: failed job must carry only an error", ErrInvalidJob)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, j.Status)
	}
	if j.UpdatedAt.Before(j.CreatedAt) {
		return fmt.Errorf("%w: updatedAt precedes createdAt", ErrInvalidJob)
	}
	return nil
}

// CheckTransition verifies that next is a legal successor of prev: status is
// legal and progress does not regress. A terminal job may not change status
// or progress.
func CheckTransition(prev, next *Job) error {
	if prev.Status.Terminal() {
		if next.Status != prev.Status || next.Progress != prev.Progress {
			return transitionError(prev.Status, next.Status)
		}
		return nil
	}
	if prev.Status != next.Status && !legalTransition(prev.Status, next.Status) {
		return transitionError(prev.Status, next.Status)
	}
	if next.Progress < prev.Progress {
		return ErrProgressRegression
	}
	return nil
}

func legalTransition(from, to JobStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to.Terminal()
	}
	return false
}
