package common

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can branch on it instead of
// parsing message text.
type Kind string

const (
	KindInputValidation     Kind = "INPUT_VALIDATION"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindDocumentFetch       Kind = "DOCUMENT_FETCH"
	KindLayoutAnalysis      Kind = "LAYOUT_ANALYSIS"
	KindExtraction          Kind = "EXTRACTION"
	KindMalformedExtraction Kind = "MALFORMED_EXTRACTION"
	KindReconciliation      Kind = "RECONCILIATION"
)

// StageError tags an underlying failure with the pipeline stage that produced
// it (e.g. "pass_a", "layout") and a branchable kind.
type StageError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s]", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(stage string, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf returns the kind of err if it is (or wraps) a StageError.
func KindOf(err error) (Kind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// StageOf returns the stage tag of err if it is (or wraps) a StageError.
func StageOf(err error) (string, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
