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


package extract

import (
	"errors"
	"fmt"

	"github.com/poiesic/gleaner/core"
)

var (
	ErrNoDocuments       = errors.New("no documents extracted")
	ErrUnsupportedPlan   = errors.New("no extractor for plan")
	ErrMissingAPIKey     = errors.New("firecrawl API key is required")
	ErrCrawlFailed       = errors.New("crawl job failed")
	ErrUnexpectedPayload = errors.New("unexpected response payload")
)

// HTTPStatusError is a non-2xx response from a content source.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// statusError returns an HTTPStatusError, marked transient for 429 and 5xx.
func statusError(url string, code int) error {
	err := &HTTPStatusError{URL: url, StatusCode: code}
	if code == 429 || code >= 500 {
		return core.Transient(err)
	}
	return err
}

// PartialError is returned together with the documents extracted before one
// or more targets failed.
type PartialError struct {
	Extracted int
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial extraction: %d documents extracted before failure: %v", e.Extracted, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
