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

// Package ai provides abstractions for the AI services gleaner depends on.
//
// Two services are modelled:
//
//   - Embedder: turns chunk text into vectors for the vector store
//   - ChatModel: answers questions given a system prompt and a user message
//
// AIProvider bundles both so they can share configuration.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo (OpenAI, Ollama, vLLM, LocalAI)
//   - ai/mock: test doubles with injectable behaviour and call counting
//
// Public constructors in ai/openai return interface types; the mocks return
// concrete types so tests can inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"hello"})
//	answer, err := provider.ChatModel().Generate(ctx, "You are helpful.", "Hi")
package ai
