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
	"errors"
	"fmt"
)

// Error taxonomy of the pipeline.
var (
	// ErrValidation indicates an unknown or malformed profile or request.
	// It is surfaced before any stage runs.
	ErrValidation = errors.New("validation error")

	// ErrStageExecution indicates a failure inside a pipeline stage.
	ErrStageExecution = errors.New("stage execution error")

	// ErrCheckEvaluation indicates a single judge check could not be evaluated.
	ErrCheckEvaluation = errors.New("check evaluation error")

	// ErrCompaction indicates chat history summarization failed.
	ErrCompaction = errors.New("compaction error")
)

// Domain validation errors
var (
	// ErrEmptyQuery indicates the query text is blank.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidProfile indicates a profile failed validation.
	ErrInvalidProfile = errors.New("invalid profile")
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

// NewStageError wraps err as a failure of stage.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStageExecution, e.Stage, e.Err)
}

// Unwrap exposes both the stage sentinel and the cause.
func (e *StageError) Unwrap() []error {
	return []error{ErrStageExecution, e.Err}
}
