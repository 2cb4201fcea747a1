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
	"fmt"
	"io"
	"testing"

	"github.com/poiesic/gleaner/ai"
	"github.com/poiesic/gleaner/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", errors.New("API returned unexpected status code: 429: slow down"), true},
		{"server error", errors.New("API returned unexpected status code: 503"), true},
		{"timeout", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"bad request", errors.New("API returned unexpected status code: 400: bad input"), false},
		{"bad request mentioning 503", errors.New("API returned unexpected status code: 400: model gpt-503 not found"), false},
		{"model name containing 500", errors.New("model llama-500b does not exist"), false},
		{"word containing eof", errors.New("invalid field: geofence"), false},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"connection reset", errors.New("read tcp 10.0.0.1:443: connection reset by peer"), true},
		{"langchaingo rate limit", llms.NewError(llms.ErrCodeRateLimit, "openai", "Rate limit exceeded"), true},
		{"langchaingo auth", llms.NewError(llms.ErrCodeAuthentication, "openai", "Invalid or missing API key"), false},
		{"cancelled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.retryable, core.IsRetryable(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, classify(nil))
}

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig(ai.WithHost("http://localhost:11434")))
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.ChatModel())
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(ai.NewConfig(ai.WithChatModel("")))
	assert.Error(t, err)
}
