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

package mock

import (
	"context"
	"sync"

	"github.com/poiesic/gleaner/ai"
)

// MockChatModel is a test double for ai.ChatModel.
type MockChatModel struct {
	// GenerateFunc is called by Generate if set.
	// If nil, Generate echoes the user message.
	GenerateFunc func(ctx context.Context, system, user string) (string, error)

	mu        sync.Mutex
	callCount int
	lastSys   string
	lastUser  string
}

var _ ai.ChatModel = (*MockChatModel)(nil)

// NewMockChatModel creates a mock chat model that echoes its input.
func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

// Generate records the prompts and returns the injected or echoed response.
func (m *MockChatModel) Generate(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.lastSys = system
	m.lastUser = user
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, system, user)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "echo: " + user, nil
}

// CallCount returns the number of Generate calls.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompts returns the system prompt and user message of the latest call.
func (m *MockChatModel) LastPrompts() (system, user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSys, m.lastUser
}
