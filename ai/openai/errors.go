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

package openai

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/gleaner/core"
	"github.com/tmc/langchaingo/llms"
)

// statusPattern extracts the HTTP status from langchaingo client errors such
// as "API returned unexpected status code: 503: overloaded".
var statusPattern = regexp.MustCompile(`status code: (\d{3})\b`)

// transientPhrases are network failures that langchaingo reports as plain text.
var transientPhrases = []string{
	"rate limit exceeded",
	"too many requests",
	"connection refused",
	"connection reset by peer",
	"i/o timeout",
	"client.timeout exceeded",
	"service unavailable",
}

// classify marks provider errors that are worth retrying: HTTP 429 and 5xx,
// timeouts, dropped connections and the matching langchaingo error codes.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if core.IsRetryable(err) || errors.Is(err, io.ErrUnexpectedEOF) {
		return core.Transient(err)
	}
	var llmErr *llms.Error
	if errors.As(err, &llmErr) {
		switch llmErr.Code {
		case llms.ErrCodeRateLimit, llms.ErrCodeTimeout, llms.ErrCodeProviderUnavailable:
			return core.Transient(err)
		}
	}
	msg := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		if code == 429 || code >= 500 {
			return core.Transient(err)
		}
		return err
	}
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return core.Transient(err)
		}
	}
	return err
}
