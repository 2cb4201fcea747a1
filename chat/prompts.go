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


package chat

import (
	"fmt"
	"strings"

	"github.com/poiesic/gleaner/core"
)

const noContext = "No specific context provided."

const answerSystemPrompt = `You are an AI assistant helping users interact with their scraped data stored in a vector database.
Your role is to:
1. Answer questions based on the provided context from their data
2. Be helpful, accurate, and concise
3. If you don't have enough context to answer, say so clearly
4. Cite which documents you're referencing when possible

Context from user's data:
%s
`

const configureSystemPrompt = `You are an AI assistant helping users configure their vector database through natural language.

Current collections: %s

Your role is to:
1. Understand configuration requests (create collections, modify schema, etc.)
2. Describe the operations that would satisfy the request
3. Explain what changes will be made
4. Ask for confirmation for destructive operations

You can help with:
- Creating new collections
- Modifying collection properties
- Choosing embedding models
- Managing data organization

Respond with both an explanation and any necessary configuration steps.
`

// contextBlock numbers the retrieved chunks for the system prompt.
func contextBlock(hits []*core.ScoredRecord) string {
	if len(hits) == 0 {
		return noContext
	}
	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = fmt.Sprintf("Document %d:\n%s", i+1, hit.Record.Text)
	}
	return strings.Join(parts, "\n\n")
}

func answerPrompt(hits []*core.ScoredRecord) string {
	return fmt.Sprintf(answerSystemPrompt, contextBlock(hits))
}

func collectionList(infos []core.CollectionInfo) string {
	if len(infos) == 0 {
		return "none"
	}
	parts := make([]string, len(infos))
	for i, info := range infos {
		desc := info.Description
		if desc == "" {
			desc = "no description"
		}
		parts[i] = fmt.Sprintf("%s (%d documents, %s)", info.Name, info.DocumentCount, desc)
	}
	return strings.Join(parts, "; ")
}

func configurePrompt(infos []core.CollectionInfo) string {
	return fmt.Sprintf(configureSystemPrompt, collectionList(infos))
}
