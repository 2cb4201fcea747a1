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

package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/gleaner/core"
)

// Key prefixes for different data types
const (
	jobPrefix          = "job:"
	jobDatePrefix      = "jobd:"
	collectionPrefix   = "vcol:"
	vectorRecordPrefix = "vrec:"
)

// makeJobKey generates a key for a job by ID.
func makeJobKey(id string) []byte {
	return []byte(jobPrefix + id)
}

// makeJobDateKey generates a composite key for the creation-time index.
// Format: prefix:timestamp:id
func makeJobDateKey(created time.Time, id string) []byte {
	prefixBytes := []byte(jobDatePrefix)
	buf := make([]byte, len(prefixBytes)+8+len(id))
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(created.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makeJobDateSeekKey positions a reverse iterator after every date index key.
func makeJobDateSeekKey() []byte {
	buf := []byte(jobDatePrefix)
	for i := 0; i < 9; i++ {
		buf = append(buf, 0xff)
	}
	return buf
}

// makeCollectionKey generates a key for collection metadata.
func makeCollectionKey(name string) []byte {
	return []byte(collectionPrefix + name)
}

// makeRecordPrefix generates the prefix shared by every record of a collection.
// Format: prefix:name:
func makeRecordPrefix(collection string) []byte {
	return []byte(vectorRecordPrefix + collection + ":")
}

// makeRecordKey generates a key for a vector record.
// Format: prefix:name:docid
func makeRecordKey(collection string, id core.ID) []byte {
	prefix := makeRecordPrefix(collection)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}
