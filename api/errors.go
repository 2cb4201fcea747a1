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


package api

import "errors"

var (
	// ErrJobsRequired is returned when no job service is provided.
	ErrJobsRequired = errors.New("job service required")

	// ErrCollectionsRequired is returned when no collection store is provided.
	ErrCollectionsRequired = errors.New("collection store required")

	// ErrInvalidChatType is returned for a chat_type other than data or config.
	ErrInvalidChatType = errors.New("invalid chat_type")
)
