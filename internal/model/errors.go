package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNotReady = errors.New("not ready")
)

// ValidationError rejects a submission before any job is created
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FailureKind classifies a stage failure for the retry policy
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// StageError wraps an executor failure with its classification
type StageError struct {
	Kind FailureKind
	Err  error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " failure"
	}
	return e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Transient marks err as retry-eligible.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: FailureTransient, Err: err}
}

// Permanent marks err as failing the unit of work immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: FailurePermanent, Err: err}
}

// ClassifyFailure returns the failure kind of err. Errors nobody
// classified, timeouts included, are transient.
func ClassifyFailure(err error) FailureKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailureTransient
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return ClassifyFailure(err) == FailurePermanent
}
