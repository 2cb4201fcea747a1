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

package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/gleaner/core"
)

// Every encoded value starts with this version number.
const codecVersion uint64 = 1

// encoder walks a field list twice: once to size the buffer, once to fill it.
type encoder struct {
	sizing bool
	bs     []byte
	n      int
}

func encode(fields func(e *encoder)) []byte {
	e := &encoder{sizing: true}
	fields(e)
	e.bs = make([]byte, e.n)
	e.sizing = false
	e.n = 0
	fields(e)
	return e.bs[:e.n]
}

func (e *encoder) uint64(v uint64) {
	if e.sizing {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.sizing {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int(v int) { e.int64(int64(v)) }

func (e *encoder) bool(v bool) {
	if e.sizing {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) string(v string) {
	if e.sizing {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) float64(v float64) {
	if e.sizing {
		e.n += raw.Float64.Size(v)
		return
	}
	e.n += raw.Float64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) float32(v float32) {
	if e.sizing {
		e.n += raw.Float32.Size(v)
		return
	}
	e.n += raw.Float32.Marshal(v, e.bs[e.n:])
}

// Times are stored as Unix microseconds.
func (e *encoder) time(t time.Time) { e.int64(t.UnixMicro()) }

func (e *encoder) optTime(t *time.Time) {
	e.bool(t != nil)
	if t != nil {
		e.time(*t)
	}
}

func (e *encoder) strings(v []string) {
	e.int(len(v))
	for _, s := range v {
		e.string(s)
	}
}

func (e *encoder) floats(v []float32) {
	e.int(len(v))
	for _, f := range v {
		e.float32(f)
	}
}

// Map keys are written sorted so equal maps encode identically.
func (e *encoder) stringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	e.int(len(keys))
	for _, k := range keys {
		e.string(k)
		e.string(m[k])
	}
}

// decoder reads fields in order and keeps the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) int() int { return int(d.int64()) }

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) float64() float64 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float64.Unmarshal(d.bs[d.n:])
	d.n += n
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
	d.n += n
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) time() time.Time {
	return time.UnixMicro(d.int64()).UTC()
}

func (d *decoder) optTime() *time.Time {
	if !d.bool() {
		return nil
	}
	t := d.time()
	return &t
}

// length reads a collection length and rejects values the remaining input cannot hold.
func (d *decoder) length() int {
	l := d.int()
	if d.err == nil && (l < 0 || l > len(d.bs)-d.n) {
		d.fail(fmt.Errorf("invalid length %d", l))
		return 0
	}
	return l
}

func (d *decoder) strings() []string {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]string, 0, l)
	for i := 0; i < l && d.err == nil; i++ {
		out = append(out, d.string())
	}
	return out
}

func (d *decoder) floats() []float32 {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]float32, 0, l)
	for i := 0; i < l && d.err == nil; i++ {
		out = append(out, d.float32())
	}
	return out
}

func (d *decoder) stringMap() map[string]string {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make(map[string]string, l)
	for i := 0; i < l && d.err == nil; i++ {
		k := d.string()
		out[k] = d.string()
	}
	return out
}

func (d *decoder) version() {
	if v := d.uint64(); d.err == nil && v != codecVersion {
		d.err = fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *core.Job) []byte {
	return encode(func(e *encoder) {
		e.uint64(codecVersion)
		e.string(job.ID)
		e.string(string(job.Kind))
		e.string(string(job.Status))
		e.float64(job.Progress)

		e.string(job.Input.Prompt)
		e.string(string(job.Input.SourceHint))
		e.strings(job.Input.Files)
		e.string(job.Input.Collection)

		e.bool(job.Result != nil)
		if r := job.Result; r != nil {
			e.string(r.CollectionName)
			e.int(r.DocumentsProcessed)
			e.int(r.ChunksEmbedded)
			e.int(r.FilesProcessed)
			e.string(r.Response)
		}
		e.bool(job.Error != nil)
		if je := job.Error; je != nil {
			e.string(string(je.Kind))
			e.string(je.Message)
		}

		e.time(job.CreatedAt)
		e.time(job.UpdatedAt)
		e.optTime(job.StartedAt)
		e.optTime(job.FinishedAt)
	})
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	d := &decoder{bs: data}
	d.version()
	job := &core.Job{
		ID:       d.string(),
		Kind:     core.JobKind(d.string()),
		Status:   core.JobStatus(d.string()),
		Progress: d.float64(),
	}
	job.Input = core.Input{
		Prompt:     d.string(),
		SourceHint: core.SourceHint(d.string()),
		Files:      d.strings(),
		Collection: d.string(),
	}
	if d.bool() {
		job.Result = &core.Result{
			CollectionName:     d.string(),
			DocumentsProcessed: d.int(),
			ChunksEmbedded:     d.int(),
			FilesProcessed:     d.int(),
			Response:           d.string(),
		}
	}
	if d.bool() {
		job.Error = &core.JobError{
			Kind:    core.ErrorKind(d.string()),
			Message: d.string(),
		}
	}
	job.CreatedAt = d.time()
	job.UpdatedAt = d.time()
	job.StartedAt = d.optTime()
	job.FinishedAt = d.optTime()
	if d.err != nil {
		return nil, d.err
	}
	return job, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(rec *core.VectorRecord) []byte {
	return encode(func(e *encoder) {
		e.uint64(codecVersion)
		e.uint64(uint64(rec.DocID))
		e.floats(rec.Vector)
		e.string(rec.Text)
		e.stringMap(rec.Metadata)
		e.time(rec.UpdatedAt)
	})
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	d := &decoder{bs: data}
	d.version()
	rec := &core.VectorRecord{
		DocID:    core.ID(d.uint64()),
		Vector:   d.floats(),
		Text:     d.string(),
		Metadata: d.stringMap(),
	}
	rec.UpdatedAt = d.time()
	if d.err != nil {
		return nil, d.err
	}
	return rec, nil
}

// MarshalCollection serializes collection metadata to bytes.
func MarshalCollection(c *core.Collection) []byte {
	return encode(func(e *encoder) {
		e.uint64(codecVersion)
		e.string(c.Name)
		e.string(c.Description)
		e.int(c.Dimension)
		e.time(c.CreatedAt)
		e.time(c.UpdatedAt)
	})
}

// UnmarshalCollection deserializes collection metadata from bytes.
func UnmarshalCollection(data []byte) (*core.Collection, error) {
	d := &decoder{bs: data}
	d.version()
	c := &core.Collection{
		Name:        d.string(),
		Description: d.string(),
		Dimension:   d.int(),
	}
	c.CreatedAt = d.time()
	c.UpdatedAt = d.time()
	if d.err != nil {
		return nil, d.err
	}
	return c, nil
}
