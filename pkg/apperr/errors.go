// Package apperr defines the error taxonomy shared by the pipeline stages and
// the serving layer.
package apperr

import (
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is returned when a stage receives no rows to process.
	ErrEmptyInput = fmt.Errorf("empty input: no rows to process")
	// ErrNoCandidates is returned when there are no trained models to evaluate.
	ErrNoCandidates = fmt.Errorf("no candidate models to evaluate")
	// ErrInsufficientSamples is returned when a dataset is too small to split.
	ErrInsufficientSamples = fmt.Errorf("not enough samples for a train/test split")
)

// SchemaError reports required columns that are absent from a table.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: [%s]", strings.Join(e.Missing, ", "))
}

// NewSchemaError returns a SchemaError, or nil when nothing is missing.
func NewSchemaError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return &SchemaError{Missing: missing}
}

// PersistenceError wraps a failed artifact or report write.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TypeMismatchError is returned when inference input is neither a table nor a
// set of records.
type TypeMismatchError struct {
	Got string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("expected a table or record set, got %s", e.Got)
}
