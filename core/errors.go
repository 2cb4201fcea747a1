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
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrProgressOutOfRange = errors.New("progress must be between 0 and 1")
	ErrProgressRegression = errors.New("progress may not decrease")
	ErrInvalidJob         = errors.New("job record violates invariants")
)

// ErrorKind is the stable classification recorded on failed jobs.
type ErrorKind string

const (
	KindValidation   ErrorKind = "ValidationError"
	KindUnresolvable ErrorKind = "UnresolvableSourceError"
	KindExtraction   ErrorKind = "ExtractionError"
	KindEmbedding    ErrorKind = "EmbeddingError"
	KindUpsert       ErrorKind = "UpsertError"
	KindCancelled    ErrorKind = "CancelledError"
	// KindChat covers chat model failures in chat-query and config-command jobs.
	KindChat ErrorKind = "ChatError"
	// KindInternal is used for errors that carry no classification, including panics.
	KindInternal ErrorKind = "InternalError"
)

func transitionError(from, to JobStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// ValidationError reports a rejected submission. No job is created for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// StageError ties a failure to the error kind of the stage that produced it.
type StageError struct {
	Kind ErrorKind
	Err  error
}

// NewStageError wraps err with kind. A nil err yields nil.
func NewStageError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetryable reports whether err represents a transient condition.
// Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// IsCancelled reports whether err stems from a cancelled context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ToJobError converts any error into the stable shape stored on a job.
func ToJobError(err error) JobError {
	if err == nil {
		return JobError{Kind: KindInternal, Message: "unknown error"}
	}
	if IsCancelled(err) {
		return JobError{Kind: KindCancelled, Message: "job cancelled: " + err.Error()}
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return JobError{Kind: KindValidation, Message: ve.Error()}
	}
	var se *StageError
	if errors.As(err, &se) {
		return JobError{Kind: se.Kind, Message: strings.TrimSpace(se.Error())}
	}
	return JobError{Kind: KindInternal, Message: err.Error()}
}
